package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jglaspey/supplement-cli/internal/extract"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/store"
)

// maxUploadBytes bounds one multipart intake request. Estimates and roof
// reports are a few MB of scanned pages at most.
const maxUploadBytes = 64 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
			return eris.Wrap(err, "serve: create upload dir")
		}

		r := buildRouter(ctx, env, cfg.Server.UploadDir, cfg.Server.CORSOrigin)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// buildRouter assembles the intake API. runCtx outlives individual requests
// so accepted jobs keep running after the response is written.
func buildRouter(runCtx context.Context, env *pipelineEnv, uploadDir, corsOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if corsOrigin == "" {
		corsOrigin = "*"
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{corsOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/jobs", func(w http.ResponseWriter, req *http.Request) {
		input, err := receiveJobInput(req, uploadDir)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		job, err := env.Store.CreateJob(req.Context(), *input)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create job"})
			return
		}

		go runAccepted(runCtx, env, job)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
		})
	})

	r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.JobFilter{
			Status: model.JobStatus(req.URL.Query().Get("status")),
		}
		jobs, err := env.Store.ListJobs(req.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list jobs"})
			return
		}
		if jobs == nil {
			jobs = []model.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	})

	r.Get("/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
		job, err := env.Store.GetJob(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	return r
}

// runAccepted executes the pipeline for an accepted upload. A nil pipeline
// leaves the job pending, which keeps handler tests hermetic.
func runAccepted(ctx context.Context, env *pipelineEnv, job *model.Job) {
	if env.Pipeline == nil {
		return
	}
	if err := env.Pipeline.RunJob(ctx, job); err != nil {
		zap.L().Error("intake job failed before running",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		_ = env.Store.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed)
		return
	}
	zap.L().Info("intake job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
	)
}

// receiveJobInput saves the uploaded documents under uploadDir and returns
// the job input. The estimate part is mandatory.
func receiveJobInput(req *http.Request, uploadDir string) (*model.JobInput, error) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, eris.Wrap(err, "invalid multipart request")
	}

	if _, err := extract.ParseStrategy(req.FormValue("strategy")); err != nil {
		return nil, err
	}

	estimatePath, err := saveUpload(req, "estimate", uploadDir)
	if err != nil {
		return nil, err
	}
	if estimatePath == "" {
		return nil, eris.New("estimate file is required")
	}

	roofPath, err := saveUpload(req, "roof", uploadDir)
	if err != nil {
		return nil, err
	}

	return &model.JobInput{
		EstimateDoc: estimatePath,
		RoofDoc:     roofPath,
		Strategy:    req.FormValue("strategy"),
	}, nil
}

// saveUpload stores one named multipart file part. Returns "" when the part
// is absent.
func saveUpload(req *http.Request, field, uploadDir string) (string, error) {
	file, header, err := req.FormFile(field)
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "read %s upload", field)
	}
	defer file.Close()

	name := fmt.Sprintf("%s-%s%s", field, uuid.New().String(), filepath.Ext(header.Filename))
	path := filepath.Join(uploadDir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "create %s", path)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", eris.Wrapf(err, "write %s", path)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
