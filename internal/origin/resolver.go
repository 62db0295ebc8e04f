// Package origin talks to the registrar's course offering pages: the landing
// form, the per-campus majors listing and the paginated course query.
package origin

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/archive"
)

const (
	// DefaultBaseURL is the registrar endpoint prefix.
	DefaultBaseURL = "http://consulta.siiau.udg.mx/wco/"
	// DefaultPageSize is the number of rows requested per listing page.
	DefaultPageSize = 200

	formPath    = "sspseca.forma_consulta"
	majorsPath  = "sspseca.lista_carreras"
	coursesPath = "sspseca.consulta_oferta"

	endOfReport = "FIN DEL REPORTE"
)

// ErrOptionsUnavailable means the landing form could not be fetched or listed
// no usable terms or campuses. A run cannot build its job list without it.
var ErrOptionsUnavailable = errors.New("origin options unavailable")

// Client performs the raw HTTP exchanges with the origin.
type Client interface {
	Get(ctx context.Context, url string) ([]byte, error)
	PostForm(ctx context.Context, url string, form map[string]string) ([]byte, error)
}

// Pacer spaces consecutive requests that share a key.
type Pacer interface {
	Wait(ctx context.Context, key string) error
	Forget(key string)
}

// PageArchiver keeps a copy of every fetched listing page.
type PageArchiver interface {
	Archive(ctx context.Context, ref archive.PageRef, body []byte) (string, error)
}

// Config controls the origin endpoints and paging.
type Config struct {
	BaseURL  string
	PageSize int
}

// Resolver implements catalog.OptionsSource, catalog.MajorSource and
// catalog.CourseSource against the registrar.
type Resolver struct {
	client   Client
	pacer    Pacer
	archiver PageArchiver
	cfg      Config
	logger   *zap.Logger
}

// New builds a Resolver. pacer and archiver may be nil.
func New(client Client, pacer Pacer, archiver PageArchiver, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if pacer == nil {
		pacer = noPacing{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		client:   client,
		pacer:    pacer,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.Named("origin"),
	}
}

func (r *Resolver) endpoint(path string) string {
	return r.cfg.BaseURL + path
}

type noPacing struct{}

func (noPacing) Wait(context.Context, string) error { return nil }
func (noPacing) Forget(string)                      {}
