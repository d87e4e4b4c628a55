package http

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

const defaultTokenTimeout = 30 * time.Second

// EnvironmentHandler exposes the lifecycle operations over HTTP.
// Mutating calls are serialized; the orchestrator expects a single caller.
type EnvironmentHandler struct {
	service ports.EnvironmentService
	tokens  ports.TokenSource
	log     zerolog.Logger

	mu sync.Mutex
}

func NewEnvironmentHandler(service ports.EnvironmentService, tokens ports.TokenSource, log zerolog.Logger) *EnvironmentHandler {
	return &EnvironmentHandler{service: service, tokens: tokens, log: log}
}

// Register mounts the routes below router (usually /api/v1).
func (h *EnvironmentHandler) Register(router fiber.Router) {
	env := router.Group("/environment")
	env.Post("/", h.BuildEnvironment)
	env.Delete("/", h.DestroyEnvironment)

	servers := router.Group("/servers")
	servers.Get("/", h.ListServers)
	servers.Post("/", h.StartServer)
	servers.Delete("/", h.StopAllServers)
	servers.Delete("/:id", h.StopServer)

	router.Get("/tokens/:kind/:username", h.GetToken)
}

func (h *EnvironmentHandler) BuildEnvironment(c *fiber.Ctx) error {
	recreate := c.QueryBool("recreate", false)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.service.BuildEnvironment(c.Context(), recreate); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EnvironmentHandler) DestroyEnvironment(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.service.DestroyEnvironment(c.Context()); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EnvironmentHandler) ListServers(c *fiber.Ctx) error {
	servers, err := h.service.ListServers(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	if servers == nil {
		servers = []domain.ServerInfo{}
	}
	return c.JSON(servers)
}

// StartServerResponse describes a started instance.
type StartServerResponse struct {
	Identifier    string `json:"identifier"`
	ContainerName string `json:"container_name"`
	TCPPort       int    `json:"tcp_port"`
	WebSocketPort int    `json:"websocket_port"`
	WebSocketURL  string `json:"ws_url"`
}

func (h *EnvironmentHandler) StartServer(c *fiber.Ctx) error {
	var opts domain.InstanceOptions
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	instance, err := h.service.NewServerInstance(c.Context(), opts)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.service.Start(c.Context(), instance); err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(StartServerResponse{
		Identifier:    instance.Identifier(),
		ContainerName: instance.ContainerName(),
		TCPPort:       instance.TCPPort(),
		WebSocketPort: instance.WebSocketPort(),
		WebSocketURL:  instance.WebSocketURL(),
	})
}

func (h *EnvironmentHandler) StopAllServers(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.service.StopAllServers(c.Context()); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EnvironmentHandler) StopServer(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Server identifier is required",
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.service.StopServer(c.Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetToken waits for a captured token. The wait is bounded by the timeout
// query parameter in seconds.
func (h *EnvironmentHandler) GetToken(c *fiber.Ctx) error {
	if h.tokens == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Token retrieval is not configured",
		})
	}

	var fetch func(context.Context, string) (string, error)
	switch c.Params("kind") {
	case "activation":
		fetch = h.tokens.Activation
	case "reset":
		fetch = h.tokens.PasswordReset
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token kind must be activation or reset",
		})
	}

	timeout := defaultTokenTimeout
	if s := c.QueryInt("timeout", 0); s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Context(), timeout)
	defer cancel()

	username := c.Params("username")
	token, err := fetch(ctx, username)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"error": "No token for " + strconv.Quote(username) + " within " + timeout.String(),
			})
		}
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"username": username, "token": token})
}

func (h *EnvironmentHandler) fail(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConnectivity):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrPortInUse):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrAbsent):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalid):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
