package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"hotfeed/feeds"
	"hotfeed/models"
	"hotfeed/posts"
)

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// Header carrying the authenticated user id
	UserHeader string

	// Origins allowed by CORS, all origins when empty
	AllowOrigins []string

	// The planner answering feed queries
	Planner *feeds.Planner

	// Single post lookups and writes
	Posts *posts.Service
}

type commentInput struct {
	Body string `json:"body" form:"body"`
}

// Returns a fiber.App instance to be used as an HTTP server for the post feed
func Server(config *ServerConfig) *fiber.App {
	header := config.UserHeader
	if header == "" {
		header = "X-User-Id"
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			status, _ = statusFor(err)
		}

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  status,
			"latency": latency,
		}).Info("Request")
		observeRequest(c.Method(), c.Route().Path, status, latency.Seconds())
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	corsConfig := cors.Config{
		AllowHeaders: strings.Join([]string{fiber.HeaderContentType, header}, ","),
	}
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = strings.Join(config.AllowOrigins, ",")
	}
	app.Use(cors.New(corsConfig))

	app.Use(identify(header))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/posts")

	api.Get("/", func(c *fiber.Ctx) error {
		resp, err := config.Planner.FeedNow(c.UserContext(), c.Query("page"), c.Query("limit"))
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	api.Get("/:id", func(c *fiber.Ctx) error {
		post, err := config.Posts.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(post)
	})

	api.Post("/", func(c *fiber.Ctx) error {
		var input models.NewPost
		if err := c.BodyParser(&input); err != nil {
			return fmt.Errorf("%w: %w", models.ErrInvalidPost, err)
		}

		upload, err := imageUpload(c)
		if err != nil {
			return err
		}

		post, err := config.Posts.Create(c.UserContext(), userId(c), input, upload)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(post)
	})

	api.Patch("/:postId", func(c *fiber.Ctx) error {
		var edit models.PostEdit
		if err := c.BodyParser(&edit); err != nil {
			return fmt.Errorf("%w: %w", models.ErrInvalidPost, err)
		}

		post, err := config.Posts.Edit(c.UserContext(), userId(c), c.Params("postId"), edit)
		if err != nil {
			return err
		}
		return c.JSON(post)
	})

	api.Delete("/:postId", func(c *fiber.Ctx) error {
		if err := config.Posts.Delete(c.UserContext(), userId(c), c.Params("postId")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "post deleted"})
	})

	api.Post("/:postId/comments", func(c *fiber.Ctx) error {
		var input commentInput
		if err := c.BodyParser(&input); err != nil {
			return fmt.Errorf("%w: %w", models.ErrInvalidPost, err)
		}

		comment, err := config.Posts.Comment(c.UserContext(), userId(c), c.Params("postId"), input.Body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})

	return app
}

// imageUpload reads the optional "image" file of a multipart submission
func imageUpload(c *fiber.Ctx) (*models.Upload, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidPost, err)
	}
	files := form.File["image"]
	if len(files) == 0 {
		return nil, nil
	}

	return readUpload(files[0])
}

func readUpload(header *multipart.FileHeader) (*models.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open image: %w", models.ErrInvalidPost, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %w", models.ErrInvalidPost, err)
	}

	return &models.Upload{
		Name:     header.Filename,
		MimeType: header.Header.Get(fiber.HeaderContentType),
		Data:     data,
	}, nil
}
