package basemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/chai2010/webp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache stores decoded tiles between runs.
type Cache interface {
	Get(ctx context.Context, provider string, c TileCoordinate) (image.Image, bool)
	Put(ctx context.Context, provider string, c TileCoordinate, img image.Image) error
}

var webpOptions = &webp.Options{Lossless: false, Quality: 80}

func encodeTile(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webpOptions); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DiskCache keeps tiles as <Root>/<provider>/<z>/<x>/<y>.webp.
type DiskCache struct {
	Root string
}

func (d *DiskCache) path(provider string, c TileCoordinate) string {
	return filepath.Join(
		d.Root,
		provider,
		fmt.Sprintf("%d", c.Z),
		fmt.Sprintf("%d", c.X),
		fmt.Sprintf("%d", c.Y)+".webp")
}

func (d *DiskCache) Get(_ context.Context, provider string, c TileCoordinate) (image.Image, bool) {
	p := d.path(provider, c)
	f, err := os.Open(p)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	img, err := webp.Decode(f)
	if err != nil {
		log.Debug().Err(err).Str("path", p).Msg("Ignoring unreadable cached tile")
		return nil, false
	}
	return img, true
}

func (d *DiskCache) Put(_ context.Context, provider string, c TileCoordinate, img image.Image) error {
	outPath := d.path(provider, c)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}

	data, err := encodeTile(img)
	if err != nil {
		return err
	}

	tmp := outPath + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, outPath)
}

// RedisCache keeps WebP encoded tiles under mapcomp:tile:<provider>:<z>:<x>:<y>.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func redisKey(provider string, c TileCoordinate) string {
	return fmt.Sprintf("mapcomp:tile:%s:%d:%d:%d", provider, c.Z, c.X, c.Y)
}

func (r *RedisCache) Get(ctx context.Context, provider string, c TileCoordinate) (image.Image, bool) {
	data, err := r.Client.Get(ctx, redisKey(provider, c)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("tile", c.String()).Msg("Redis tile lookup failed")
		}
		return nil, false
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	return img, true
}

func (r *RedisCache) Put(ctx context.Context, provider string, c TileCoordinate, img image.Image) error {
	data, err := encodeTile(img)
	if err != nil {
		return err
	}

	ttl := r.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return r.Client.Set(ctx, redisKey(provider, c), data, ttl).Err()
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}
