package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPJar exposes a request's cookies and writes assignments as Set-Cookie
// headers on the response. Reads reflect assignments already made on the
// response, so a value written during a request can be read back in it.
type HTTPJar struct {
	r   *http.Request
	w   http.ResponseWriter
	now func() time.Time

	mu      sync.Mutex
	pending []*http.Cookie
}

// NewHTTPJar wraps a request/response pair.
func NewHTTPJar(w http.ResponseWriter, r *http.Request) *HTTPJar {
	return &HTTPJar{r: r, w: w, now: time.Now}
}

// Cookie returns the request cookie header with names assigned during this
// request replaced by their latest live value.
func (j *HTTPJar) Cookie(ctx context.Context) (string, error) {
	if j.r == nil {
		return "", fmt.Errorf("http jar: %w", ErrNoCookieJar)
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	assigned := make(map[string]struct{}, len(j.pending))
	for _, c := range j.pending {
		assigned[c.Name] = struct{}{}
	}

	var entries []string
	for _, line := range j.r.Header.Values("Cookie") {
		for _, entry := range splitCookieHeader(line) {
			if _, ok := assigned[cookieName(entry)]; ok {
				continue
			}
			entries = append(entries, entry)
		}
	}

	now := j.now()
	for _, c := range j.pending {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		entries = append(entries, c.Name+"="+c.Value)
	}
	return strings.Join(entries, "; "), nil
}

// SetCookie validates the assignment and appends it as a Set-Cookie header.
func (j *HTTPJar) SetCookie(ctx context.Context, assignment string) error {
	if j.w == nil {
		return fmt.Errorf("http jar: %w", ErrNoCookieJar)
	}
	c, err := http.ParseSetCookie(assignment)
	if err != nil {
		return fmt.Errorf("parse cookie assignment: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	wasPending := false
	kept := j.pending[:0]
	for _, p := range j.pending {
		if p.Name == c.Name {
			wasPending = true
			continue
		}
		kept = append(kept, p)
	}
	j.pending = kept

	// Deleting a cookie the client never had only needs the earlier
	// assignment withdrawn from the response.
	expired := !c.Expires.IsZero() && !c.Expires.After(j.now())
	if expired && wasPending && !j.inRequest(c.Name) {
		j.dropSetCookie(c.Name)
		return nil
	}

	j.pending = append(j.pending, c)
	j.w.Header().Add("Set-Cookie", assignment)
	return nil
}

func (j *HTTPJar) inRequest(name string) bool {
	if j.r == nil {
		return false
	}
	_, err := j.r.Cookie(name)
	return err == nil
}

func (j *HTTPJar) dropSetCookie(name string) {
	h := j.w.Header()
	lines := h.Values("Set-Cookie")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if cookieName(line) == name {
			continue
		}
		kept = append(kept, line)
	}
	h.Del("Set-Cookie")
	for _, line := range kept {
		h.Add("Set-Cookie", line)
	}
}
