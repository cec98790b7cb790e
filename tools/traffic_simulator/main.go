package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/patrickwarner/openattribution/internal/db"
	"github.com/patrickwarner/openattribution/internal/observability"
)

var (
	server       string
	siteURL      string
	visitors     int
	totalReq     int
	conc         int
	duration     time.Duration
	reqRate      float64
	campaignRate float64
	stats        bool
	flush        bool
	redisAddr    string
	mirror       bool
	debug        bool
	label        string
)

var logger *zap.Logger

var httpClient *http.Client

var (
	sources   = []string{"google", "facebook", "newsletter", "bing", "partner"}
	mediums   = []string{"cpc", "social", "email", "display"}
	campaigns = []string{"spring_sale", "brand", "retargeting", "launch"}
	referrers = []string{
		"https://www.google.com/",
		"https://news.ycombinator.com/",
		"https://l.facebook.com/",
		"",
	}
)

const statsInterval = 5 * time.Second

var (
	countSent        uint64
	countSuccess     uint64
	countNewCampaign uint64
	countReset       uint64
	countErrors      uint64
)

// visitor keeps one browser's cookies and session state across visits.
type visitor struct {
	mu        sync.Mutex
	deviceID  string
	client    *http.Client
	sessionID int64
	lastEvent int64
}

type attributionResponse struct {
	NewCampaign  bool   `json:"new_campaign"`
	ResetSession bool   `json:"reset_session"`
	SessionID    int64  `json:"session_id"`
	Storage      string `json:"storage"`
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "attribution server base URL")
	flag.StringVar(&siteURL, "site", "https://www.example.com/landing", "page URL visitors land on")
	flag.IntVar(&visitors, "visitors", 100, "number of unique visitors")
	flag.IntVar(&totalReq, "requests", 1000, "total page loads to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&reqRate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&campaignRate, "campaign-rate", 0.3, "probability that a page load carries UTM parameters")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "flush the redis cookie mirror before sending traffic")
	flag.StringVar(&redisAddr, "redis", "localhost:6379", "redis address used by -flush")
	flag.BoolVar(&mirror, "mirror", false, "send device ids so the server uses its cookie mirror")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
	}
	httpClient = &http.Client{Timeout: 30 * time.Second, Transport: transport}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	ctx := context.Background()
	if flush {
		store, err := db.InitRedis(ctx, redisAddr)
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}
		n, err := store.FlushCookieJars(ctx)
		store.Close()
		if err != nil {
			logger.Fatal("flush cookie mirror", zap.Error(err))
		}
		logger.Info("cookie mirror flushed", zap.String("addr", redisAddr), zap.Int("jars_deleted", n))
	}

	pool := make([]*visitor, visitors)
	for i := range pool {
		jar, err := cookiejar.New(nil)
		if err != nil {
			logger.Fatal("cookie jar", zap.Error(err))
		}
		pool[i] = &visitor{
			deviceID: fmt.Sprintf("device-%d", i),
			client:   &http.Client{Timeout: httpClient.Timeout, Transport: transport, Jar: jar},
		}
	}

	limit := rate.Inf
	if reqRate > 0 {
		limit = rate.Limit(reqRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rmu sync.Mutex
	pick := func(n int) int {
		rmu.Lock()
		defer rmu.Unlock()
		return r.Intn(n)
	}
	chance := func(p float64) bool {
		rmu.Lock()
		defer rmu.Unlock()
		return r.Float64() < p
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					return
				}
			}
		}()
	}

	start := time.Now()
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			logger.Error("rate limiter", zap.Error(err))
			break
		}

		v := pool[pick(len(pool))]
		page := siteURL
		if chance(campaignRate) {
			page = campaignURL(siteURL, sources[pick(len(sources))], mediums[pick(len(mediums))], campaigns[pick(len(campaigns))])
		}
		referrer := referrers[pick(len(referrers))]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			visit(v, page, referrer)
		}()
	}
	wg.Wait()
	close(done)
	printStats()
}

func campaignURL(base, source, medium, campaign string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("utm_source", source)
	q.Set("utm_medium", medium)
	q.Set("utm_campaign", campaign)
	u.RawQuery = q.Encode()
	return u.String()
}

// visit reports one page load. Loads of the same visitor are serialized
// so its cookie jar and session state stay consistent.
func visit(v *visitor, page, referrer string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	atomic.AddUint64(&countSent, 1)
	q := url.Values{}
	q.Set("url", page)
	if referrer != "" {
		q.Set("referrer", referrer)
	}
	if v.sessionID > 0 {
		q.Set("session_id", fmt.Sprint(v.sessionID))
	}
	if v.lastEvent > 0 {
		q.Set("last_event_time", fmt.Sprint(v.lastEvent))
	}
	if mirror {
		q.Set("device_id", v.deviceID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/attribution?"+q.Encode(), nil)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}

	resp, err := v.client.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("attribution request error", zap.Error(err))
		return
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("read body error", zap.Error(err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(body))))
		return
	}

	var out attributionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode error", zap.Error(err))
		return
	}

	now := time.Now().UnixMilli()
	if v.sessionID == 0 {
		v.sessionID = now
	}
	if out.ResetSession {
		atomic.AddUint64(&countReset, 1)
		v.sessionID = out.SessionID
	}
	v.lastEvent = now
	if out.NewCampaign {
		atomic.AddUint64(&countNewCampaign, 1)
	}
	atomic.AddUint64(&countSuccess, 1)
	logger.Debug("visit",
		zap.String("device_id", v.deviceID),
		zap.String("url", page),
		zap.Bool("new_campaign", out.NewCampaign),
		zap.String("storage", out.Storage))
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	succ := atomic.LoadUint64(&countSuccess)
	nc := atomic.LoadUint64(&countNewCampaign)
	rs := atomic.LoadUint64(&countReset)
	errs := atomic.LoadUint64(&countErrors)
	var share float64
	if succ > 0 {
		share = float64(nc) / float64(succ)
	}
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", sent),
		zap.Uint64("success", succ),
		zap.Uint64("new_campaign", nc),
		zap.Uint64("session_resets", rs),
		zap.Uint64("errors", errs),
		zap.Float64("new_campaign_share", share))
}
