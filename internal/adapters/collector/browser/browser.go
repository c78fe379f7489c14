// Package browser is a live collector that drives a headless Chrome through
// go-rod. Each page is opened, left to load, and a configured script is
// evaluated on it; the script's result is the JSON the collector decodes.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/okian/keiba/internal/adapters/collector"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
)

// DefaultScript returns the page text, which suits upstream JSON endpoints.
const DefaultScript = `() => document.body.innerText`

const defaultPageTimeout = 30 * time.Second

// ErrSession marks a browser that could not be launched or logged in.
var ErrSession = errors.New("browser session failed")

// Config holds the pages and scripts the collector works with. URL templates
// accept {date}, {track}, {race} and {key} placeholders.
type Config struct {
	Headless    bool
	CookiesFile string
	PageTimeout time.Duration

	RaceListURL   string
	RacePageURL   string
	PredictionURL string

	RaceListScript   string
	RaceSheetScript  string
	PredictionScript string
}

// Collector implements collector.Collector against live pages.
type Collector struct {
	cfg     Config
	logger  logger.Logger
	mu      sync.Mutex
	browser *rod.Browser
}

// New returns a collector. The browser is started on first use.
func New(cfg Config) *Collector {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	for _, s := range []*string{&cfg.RaceListScript, &cfg.RaceSheetScript, &cfg.PredictionScript} {
		if strings.TrimSpace(*s) == "" {
			*s = DefaultScript
		}
	}
	return &Collector{cfg: cfg, logger: logger.Get().Named("browser")}
}

// Start launches Chrome, connects and installs the login cookies.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return nil
	}

	cookies, err := LoadCookies(c.cfg.CookiesFile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSession, err)
	}

	controlURL, err := launcher.New().Headless(c.cfg.Headless).Launch()
	if err != nil {
		return fmt.Errorf("%w: launch chrome: %w", ErrSession, err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("%w: connect to chrome: %w", ErrSession, err)
	}
	if len(cookies) > 0 {
		if err := b.SetCookies(cookies); err != nil {
			_ = b.Close()
			return fmt.Errorf("%w: set cookies: %w", ErrSession, err)
		}
	}
	c.browser = b
	c.logger.Info(ctx, "browser connected", logger.Bool("headless", c.cfg.Headless), logger.Int("cookies", len(cookies)))
	return nil
}

// Close shuts the browser down.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	return err
}

// Races implements collector.Collector. Session failures surface here, at
// work set acquisition, so they abort the run.
func (c *Collector) Races(ctx context.Context, date string) ([]race.Key, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	b, err := c.fetch(ctx, Expand(c.cfg.RaceListURL, race.Key{Date: date}), c.cfg.RaceListScript)
	if err != nil {
		return nil, err
	}
	return collector.DecodeKeys(b)
}

// Sheets implements collector.Collector.
func (c *Collector) Sheets(ctx context.Context, key race.Key) ([]collector.Sheet, error) {
	b, err := c.fetch(ctx, Expand(c.cfg.RacePageURL, key), c.cfg.RaceSheetScript)
	if err != nil {
		return nil, err
	}
	return collector.DecodeSheets(b, key, race.SourceAnalytics)
}

// Prediction implements collector.Collector.
func (c *Collector) Prediction(ctx context.Context, key race.Key) (race.EnginePrediction, error) {
	if c.cfg.PredictionURL == "" {
		return race.EnginePrediction{}, fmt.Errorf("%w: no prediction page configured", collector.ErrNoData)
	}
	b, err := c.fetch(ctx, Expand(c.cfg.PredictionURL, key), c.cfg.PredictionScript)
	if err != nil {
		return race.EnginePrediction{}, err
	}
	return collector.DecodePrediction(b)
}

// fetch opens url, waits for it to load and returns the script result.
func (c *Collector) fetch(ctx context.Context, url, script string) ([]byte, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	defer func() { _ = page.Close() }()

	p := page.Timeout(c.cfg.PageTimeout)
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	res, err := p.Evaluate(&rod.EvalOptions{JS: script, ByValue: true, AwaitPromise: true})
	if err != nil {
		return nil, fmt.Errorf("evaluate on %s: %w", url, err)
	}
	if res == nil || res.Value.Nil() {
		return nil, fmt.Errorf("%w: %s returned nothing", collector.ErrNoData, url)
	}
	c.logger.Debug(ctx, "page extracted", logger.String("url", url))
	return []byte(res.Value.String()), nil
}

// Expand fills the placeholders of a URL template from key. Unset key parts
// leave their placeholder empty.
func Expand(tmpl string, key race.Key) string {
	num := ""
	if key.Number > 0 {
		num = fmt.Sprintf("%02d", key.Number)
	}
	r := strings.NewReplacer(
		"{date}", key.Date,
		"{track}", string(key.Track),
		"{race}", num,
		"{key}", keyString(key),
	)
	return r.Replace(tmpl)
}

func keyString(key race.Key) string {
	if key.Track == "" || key.Number == 0 {
		return key.Date
	}
	return key.String()
}

// cookie is the exported-cookie format of common browser extensions.
type cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	Expires  float64 `json:"expirationDate"`
}

// LoadCookies reads a JSON cookie export. An empty path yields no cookies.
func LoadCookies(path string) ([]*proto.NetworkCookieParam, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	var raw []cookie
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode cookies %s: %w", path, err)
	}
	out := make([]*proto.NetworkCookieParam, 0, len(raw))
	for i, ck := range raw {
		if ck.Name == "" || ck.Domain == "" {
			return nil, fmt.Errorf("cookie %d: name and domain are required", i)
		}
		cookiePath := ck.Path
		if cookiePath == "" {
			cookiePath = "/"
		}
		out = append(out, &proto.NetworkCookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     cookiePath,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
			Expires:  proto.TimeSinceEpoch(ck.Expires),
		})
	}
	return out, nil
}
