// Command grader-worker serves the grading pipeline over HTTP: a health
// check, Prometheus metrics, and the /grade endpoint that drives a
// submission through the sandbox, fixture store, and fuzzer. Plagiarism
// screening (internal/fingerprint) is not run by /grade.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gradeworks/grader-worker/internal/fixtures"
	"github.com/gradeworks/grader-worker/internal/logging"
	"github.com/gradeworks/grader-worker/internal/pipeline"
	"github.com/gradeworks/grader-worker/internal/sandbox"
)

func main() {
	logging.Init()
	defer logging.Sync()

	if err := sandbox.DropPrivileges(dropUID(), dropGID()); err != nil {
		logging.L().Fatal("privilege drop failed", zap.Error(err))
	}

	workerType := getenv("WORKER_TYPE", "grader_rust")
	port := getenv("PORT", "8080")
	fixturesBaseURL := getenv("FIXTURES_BASE_URL", "http://localhost:4000/api")

	cacheDir := getenv("FIXTURE_CACHE_DIR", "/tmp/grader-worker/fixtures")
	workspaceRoot := getenv("WORKSPACE_ROOT", "/tmp/grader-worker/workspaces")
	os.MkdirAll(cacheDir, 0o755)
	os.MkdirAll(workspaceRoot, 0o755)

	executor := sandbox.NewLinuxExecutor(getenv("CGROUP_ROOT", "/sys/fs/cgroup/grader-worker"))
	store := fixtures.NewStore(fixturesBaseURL, cacheDir)
	pipe := pipeline.New(executor, store, workspaceRoot)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "worker_type": workerType})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/grade", gradeHandler(pipe, workerType, fixturesBaseURL))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.L().Info("grading worker listening", zap.String("port", port), zap.String("workerType", workerType))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.L().Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.L().Error("graceful shutdown failed", zap.Error(err))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.S().Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dropUID() int {
	return envInt("SANDBOX_UID", 65534)
}

func dropGID() int {
	return envInt("SANDBOX_GID", 65534)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
