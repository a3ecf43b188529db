package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubcache/internal/cache"
	"github.com/any-hub/hubcache/internal/version"
)

// RegisterDiagnosticRoutes 暴露 /-/healthz 与 /-/cache 诊断接口。
func RegisterDiagnosticRoutes(app *fiber.App, cacheDir string, logger *logrus.Logger) {
	if app == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})

	app.Get("/-/cache", func(c fiber.Ctx) error {
		repos, err := cache.Scan(cacheDir)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("action", "cache_scan").Warn("cache_scan_failed")
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_scan_failed"})
		}
		return c.JSON(encodeCache(cacheDir, repos))
	})
}

type cachePayload struct {
	CacheDir  string           `json:"cache_dir"`
	Repos     []cache.RepoInfo `json:"repos"`
	SizeBytes int64            `json:"size_bytes"`
}

func encodeCache(cacheDir string, repos []cache.RepoInfo) cachePayload {
	sort.Slice(repos, func(i, j int) bool {
		return repos[i].Folder < repos[j].Folder
	})
	payload := cachePayload{CacheDir: cacheDir, Repos: repos}
	if payload.Repos == nil {
		payload.Repos = []cache.RepoInfo{}
	}
	for _, info := range repos {
		payload.SizeBytes += info.SizeBytes
	}
	return payload
}
