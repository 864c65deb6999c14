// internal/demobank/server.go
package demobank

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// BasePath is where the site is mounted, matching the public ParaBank.
	BasePath      = "/parabank"
	sessionCookie = "JSESSIONID"

	shutdownTimeout = 5 * time.Second
)

// Server serves a ParaBank look-alike. It is a test double with just enough
// behavior for the bundled scenarios.
type Server struct {
	bank   *Bank
	engine *gin.Engine
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock injects the clock used for transaction dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds the server and its seeded bank.
func New(opts ...Option) *Server {
	s := &Server{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("demobank")
	s.bank = NewBank(s.now)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())
	r.SetHTMLTemplate(parseTemplates())
	s.routes(r)
	s.engine = r
	return s
}

// Handler exposes the router, for httptest servers.
func (s *Server) Handler() http.Handler { return s.engine }

// Bank exposes the in-memory state, for assertions in tests.
func (s *Server) Bank() *Bank { return s.bank }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, BasePath+"/index.htm") })

	g := r.Group(BasePath)
	g.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "index.htm") })
	g.GET("/index.htm", s.index)
	g.POST("/login.htm", s.login)
	g.GET("/logout.htm", s.logout)
	g.GET("/register.htm", s.registerForm)
	g.POST("/register.htm", s.register)

	auth := g.Group("", s.requireLogin)
	auth.GET("/overview.htm", s.overview)
	auth.GET("/activity.htm", s.activity)
	auth.GET("/openaccount.htm", s.openAccountForm)
	auth.POST("/openaccount.htm", s.openAccount)
	auth.GET("/transfer.htm", s.transferForm)
	auth.POST("/transfer.htm", s.transfer)
	auth.GET("/billpay.htm", s.billPayForm)
	auth.POST("/billpay.htm", s.billPay)
	auth.GET("/findtrans.htm", s.findTransactionsForm)
	auth.POST("/findtrans.htm", s.findTransactions)
	auth.GET("/requestloan.htm", s.requestLoanForm)
	auth.POST("/requestloan.htm", s.requestLoan)
	auth.GET("/updateprofile.htm", s.updateProfileForm)
	auth.POST("/updateprofile.htm", s.updateProfile)

	r.NoRoute(func(c *gin.Context) {
		s.render(c, http.StatusNotFound, "error", pageData{Title: "Error", Error: "The page you requested was not found."})
	})
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	addr := ln.Addr().String()

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Demo bank listening.", zap.String("addr", addr), zap.String("url", fmt.Sprintf("http://%s%s/index.htm", addr, BasePath)))
		errs <- srv.Serve(ln)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down demo bank.")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs every request at debug level.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request served.",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
