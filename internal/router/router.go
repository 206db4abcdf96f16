package router

import (
	"cinelog/internal/access"
	"cinelog/internal/handlers"
	"cinelog/internal/logger"
	"cinelog/internal/middleware"
	"cinelog/internal/services"

	"github.com/gin-gonic/gin"
)

// Services is everything the HTTP layer needs.
type Services struct {
	Movies     *services.MovieService
	Comments   *services.CommentService
	Votes      *services.VoteService
	Users      *services.UserService
	Projection *services.ProjectionService
	Repairs    services.RepairScheduler
	TMDB       *services.TMDBClient
	Captcha    *services.CaptchaService
	SiteURL    string
}

// RegisterRoutes expects sessions and HTMLRender to be set on r already.
func RegisterRoutes(r *gin.Engine, s *Services) {
	if err := handlers.RegisterValidators(); err != nil {
		logger.For(nil).WithError(err).Fatal("Failed to register validators")
	}
	r.Use(middleware.LoadUser(s.Users))

	// Handlers
	authHandler := handlers.NewAuthHandler(s.Users, s.Captcha)
	movieHandler := handlers.NewMovieHandler(s.Movies, s.Comments, s.Votes, s.TMDB, s.SiteURL)
	commentHandler := handlers.NewCommentHandler(s.Comments)
	voteHandler := handlers.NewVoteHandler(s.Votes)
	userHandler := handlers.NewUserHandler(s.Users, s.Comments)
	adminHandler := handlers.NewAdminHandler(s.Repairs, s.Projection)
	seoHandler := handlers.NewSEOHandler(s.Movies, s.SiteURL)

	// 公共路由 (Public Routes)
	r.GET("/", movieHandler.List)                         // 影片列表
	r.GET("/movies/search", movieHandler.Search)          // 搜索
	r.GET("/movies/:id", movieHandler.Detail)             // 影片详情
	r.GET("/movies/:id/comments", commentHandler.Load)    // 加载更多评论
	r.GET("/robots.txt", seoHandler.RobotsTxt)            // robots
	r.GET("/sitemap.xml", seoHandler.SitemapXML)          // sitemap
	r.GET("/feed.xml", seoHandler.FeedXML)                // 新片 RSS
	r.GET("/about", handlers.About)                       // 关于
	r.GET("/faq", handlers.FAQ)                           // 常见问题
	r.GET("/error", handlers.ErrorPage)                   // 通用错误页
	r.GET("/register", authHandler.ShowRegister)          // 注册页面
	r.POST("/register", authHandler.Register)             // 提交注册
	r.GET("/captcha/refresh", authHandler.RefreshCaptcha) // 刷新验证码
	r.GET("/login", authHandler.ShowLogin)                // 登录页面
	r.POST("/login", authHandler.Login)                   // 提交登录
	r.POST("/logout", authHandler.Logout)                 // 退出登录

	// 受保护路由 (Protected Routes)
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/movies/:id/comments", commentHandler.Create) // 发表评论/回复
		authorized.POST("/comments/:id", commentHandler.Edit)          // 编辑评论
		authorized.POST("/comments/:id/delete", commentHandler.Delete) // 删除评论
		authorized.POST("/votes", voteHandler.Vote)                    // 点赞/点踩
		authorized.GET("/users/:id", userHandler.Profile)              // 用户主页
	}

	// 版主路由 (Moderator Routes)
	mod := r.Group("/")
	mod.Use(middleware.AuthRequired(), middleware.ModeratorRequired())
	{
		mod.GET("/movies/new", movieHandler.ShowCreate)
		mod.POST("/movies/new", movieHandler.Create)
		mod.GET("/movies/:id/edit", movieHandler.ShowEdit)
		mod.POST("/movies/:id/edit", movieHandler.Update)
		mod.POST("/movies/:id/delete", movieHandler.Delete)
		mod.GET("/movies/find", movieHandler.ShowFind)           // TMDB 搜索
		mod.POST("/movies/find", movieHandler.Find)              // 提交 TMDB 搜索
		mod.POST("/movies/import/:tmdb_id", movieHandler.Import) // 从 TMDB 导入
	}

	users := r.Group("/users")
	users.Use(middleware.AuthRequired(), middleware.RequireCapability(access.ListUsers))
	{
		users.GET("", userHandler.List)                       // 用户列表
		users.POST("/:id/role/:role", userHandler.AssignRole) // 分配角色
		users.POST("/:id/delete", userHandler.Delete)         // 删除用户（仅管理员，服务层校验）
	}

	// 管理员路由 (Admin Routes)
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.POST("/comments/:id/recount", adminHandler.RecountComment) // 单条计数修复
		admin.POST("/recount", adminHandler.RecountAll)                  // 全量计数修复
	}
}
