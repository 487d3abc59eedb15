package cipher

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ytget/yt2ogg/internal/logger"
)

// PlayerJSTTL bounds how long a downloaded player.js is reused.
const PlayerJSTTL = 10 * time.Minute

// Getter performs a single GET. *client.Client satisfies it and reports
// non-2xx answers as errors.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

type programEntry struct {
	prog  *Program
	expAt time.Time
}

// Decoder downloads player.js on demand and decodes signatures and n values
// with it. It is safe for concurrent use.
type Decoder struct {
	client Getter
	ttl    time.Duration
	now    func() time.Time
	log    *logger.ComponentLogger

	mu    sync.Mutex
	cache map[string]programEntry
}

// NewDecoder returns a Decoder that fetches player.js through c.
func NewDecoder(c Getter) *Decoder {
	return &Decoder{
		client: c,
		ttl:    PlayerJSTTL,
		now:    time.Now,
		log:    logger.WithComponent(logger.ComponentCipher),
		cache:  make(map[string]programEntry),
	}
}

// Program returns the parsed player.js at playerJSURL, downloading it when
// the cached copy is missing or expired.
func (d *Decoder) Program(ctx context.Context, playerJSURL string) (*Program, error) {
	if playerJSURL == "" {
		return nil, NewError(ErrCodePlayerJSNotFound, "player.js url is empty")
	}

	d.mu.Lock()
	entry, ok := d.cache[playerJSURL]
	d.mu.Unlock()
	if ok && d.now().Before(entry.expAt) {
		d.log.Trace("player.js cache hit", logger.Fields{"url": playerJSURL})
		return entry.prog, nil
	}

	d.log.Debug("downloading player.js", logger.Fields{"url": playerJSURL})
	resp, err := d.client.Get(ctx, playerJSURL)
	if err != nil {
		return nil, wrapError(ErrCodePlayerJSDownload, "download player.js", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(ErrCodePlayerJSDownload, "read player.js", err)
	}

	prog := NewProgram(string(body))
	d.mu.Lock()
	d.cache[playerJSURL] = programEntry{prog: prog, expAt: d.now().Add(d.ttl)}
	d.mu.Unlock()
	return prog, nil
}

// Decipher decodes an encrypted signature with the player.js at playerJSURL.
func (d *Decoder) Decipher(ctx context.Context, playerJSURL, signature string) (string, error) {
	prog, err := d.Program(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := prog.Signature(ctx, signature)
	if err != nil {
		d.log.Warn("signature decipher failed", logger.Fields{"error": err.Error()})
		return "", err
	}
	d.log.Debug("signature deciphered", logger.Fields{"took": time.Since(start).String()})
	return out, nil
}

// DecipherN transforms the n parameter. The value is returned unchanged when
// player.js carries no n function.
func (d *Decoder) DecipherN(ctx context.Context, playerJSURL, n string) (string, error) {
	prog, err := d.Program(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	if !prog.HasNFunction() {
		d.log.Debug("no n function in player.js, keeping n as is")
		return n, nil
	}
	return prog.N(ctx, n)
}
