package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cinelog/internal/config"
	"cinelog/internal/db"
	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/router"
	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.For(nil)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Database
	conn := db.Init(cfg.DatabaseURL, cfg.AdminEmail, cfg.AdminPassword)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := utils.GetCache()
	projection := services.NewProjectionService(conn)

	// 计数修复 worker：队列 + 定时全量修复
	worker := services.NewProjectionWorker(projection)
	worker.Start(ctx)
	worker.StartPeriodicRepair(ctx, cfg.RepairInterval)

	mail := services.NewMailService(services.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		SiteURL:  cfg.SiteURL,
	})

	svc := &router.Services{
		Movies:     services.NewMovieService(conn, cache),
		Comments:   services.NewCommentService(conn, cache, mail),
		Votes:      services.NewVoteService(conn, cache, worker),
		Users:      services.NewUserService(conn, cache),
		Projection: projection,
		Repairs:    worker,
		TMDB:       services.NewTMDBClient(cfg.TMDBBaseURL, cfg.TMDBImageURL, cfg.TMDBAPIKey),
		Captcha:    services.NewCaptchaService(),
		SiteURL:    cfg.SiteURL,
	}

	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware())

	// Setup Sessions
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("cinelog_session", store))

	// Load Templates using Multitemplate to avoid collision and allow handler names
	r.HTMLRender = loadTemplates("./web/templates")

	// Static Assets
	r.Static("/static", "./web/static")

	router.RegisterRoutes(r, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("cinelog server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"dict": func(values ...interface{}) (map[string]interface{}, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("invalid dict call")
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
		"add": func(a, b int) int {
			return a + b
		},
		"timeAgo": func(t time.Time) string {
			seconds := int(time.Since(t).Seconds())
			switch {
			case seconds < 60:
				return "just now"
			case seconds < 3600:
				return fmt.Sprintf("%d min ago", seconds/60)
			case seconds < 86400:
				return fmt.Sprintf("%d h ago", seconds/3600)
			case seconds < 2592000:
				return fmt.Sprintf("%d days ago", seconds/86400)
			}
			return t.Format("2006-01-02")
		},
		"deref": func(f *float64) float64 {
			if f == nil {
				return 0
			}
			return *f
		},
		"voteOf": func(votes map[uint]models.VoteType, id uint) string {
			return string(votes[id])
		},
		"canEdit":     canEdit,
		"canDelete":   canDelete,
		"markdown":    utils.RenderComment,
		"urlquery":    url.QueryEscape,
		"isModerator": func(u *models.User) bool { return u != nil && u.IsModerator() },
		"isAdmin":     func(u *models.User) bool { return u != nil && u.IsAdmin() },
	}
}

func loadTemplates(templatesDir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()

	layouts, err := filepath.Glob(templatesDir + "/layouts/*.html")
	if err != nil {
		panic(err)
	}

	components, err := filepath.Glob(templatesDir + "/components/*.html")
	if err != nil {
		panic(err)
	}

	// Helper to assemble files: layouts first, so the layout is the entry template
	assemble := func(view string) []string {
		files := make([]string, 0)
		files = append(files, layouts...)
		files = append(files, components...)
		files = append(files, view)
		return files
	}

	funcMap := templateFuncs()
	views := []string{
		"auth/login.html",
		"auth/register.html",
		"movies/list.html",
		"movies/detail.html",
		"movies/search.html",
		"movies/form.html",
		"movies/find.html",
		"users/list.html",
		"users/profile.html",
		"pages/about.html",
		"pages/faq.html",
		"error.html",
	}
	for _, name := range views {
		r.AddFromFilesFuncs(name, funcMap, assemble(templatesDir+"/views/"+name)...)
	}

	return r
}
