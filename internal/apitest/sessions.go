package apitest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/ctadmin/internal"
	"github.com/redis/go-redis/v9"
)

// rotateScript swaps the refresh digest and CSRF value of a session when the
// presented pair matches, marks the session current and moves the refresh
// index to the new digest.
//
// KEYS[1] session hash, KEYS[2] old refresh index, KEYS[3] new refresh index
// ARGV[1] presented refresh digest, ARGV[2] presented CSRF value,
// ARGV[3] new refresh digest, ARGV[4] new CSRF value, ARGV[5] current
// generation, ARGV[6] refresh TTL in ms, ARGV[7] session id
const rotateScript = `
if redis.call("HGET", KEYS[1], "refresh") ~= ARGV[1] then
  return 0
end
if redis.call("HGET", KEYS[1], "csrf") ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], "refresh", ARGV[3], "csrf", ARGV[4], "gen", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[7], "PX", ARGV[6])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

var errSessionInvalid = errors.New("session invalid")

type sessionState int

const (
	sessionActive sessionState = iota
	sessionStale
	sessionRevoked
	sessionMissing
)

// sessionRegistry keeps server-side session records:
//
//	<prefix>:s:<sid>     hash {user, refresh, csrf, gen}
//	<prefix>:r:<digest>  refresh digest to session id
//	<prefix>:rev:<sid>   revocation marker, lives as long as an access token
//	<prefix>:gen         access-token generation, bumped by ExpireAccess
type sessionRegistry struct {
	rdb        redis.UniversalClient
	prefix     string
	refreshTTL time.Duration
	accessTTL  time.Duration
}

type issued struct {
	refresh string
	csrf    string
}

func (r *sessionRegistry) sessionKey(sid string) string { return r.prefix + ":s:" + sid }
func (r *sessionRegistry) revokedKey(sid string) string { return r.prefix + ":rev:" + sid }
func (r *sessionRegistry) refreshKey(dig string) string { return r.prefix + ":r:" + dig }
func (r *sessionRegistry) genKey() string               { return r.prefix + ":gen" }

func (r *sessionRegistry) generation(ctx context.Context) (int64, error) {
	gen, err := r.rdb.Get(ctx, r.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// create registers sid for username. withRefresh issues refresh and CSRF
// secrets; bearer sessions skip them.
func (r *sessionRegistry) create(ctx context.Context, sid, username string, withRefresh bool) (issued, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return issued{}, err
	}
	fields := map[string]any{"user": username, "gen": gen}
	var out issued
	if withRefresh {
		if out.refresh, err = internal.NewOpaqueToken(); err != nil {
			return issued{}, err
		}
		if out.csrf, err = internal.NewOpaqueToken(); err != nil {
			return issued{}, err
		}
		fields["refresh"] = internal.HashToken(out.refresh)
		fields["csrf"] = out.csrf
	}

	key := r.sessionKey(sid)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.refreshTTL)
	if withRefresh {
		pipe.Set(ctx, r.refreshKey(internal.HashToken(out.refresh)), sid, r.refreshTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return issued{}, fmt.Errorf("create session: %w", err)
	}
	return out, nil
}

// rotate replaces the refresh and CSRF secrets of the session owning
// refresh when csrf matches the stored value. It returns the new secrets,
// the session id and the username.
func (r *sessionRegistry) rotate(ctx context.Context, refresh, csrf string) (issued, string, string, error) {
	digest := internal.HashToken(refresh)
	sid, err := r.rdb.Get(ctx, r.refreshKey(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return issued{}, "", "", errSessionInvalid
	}
	if err != nil {
		return issued{}, "", "", err
	}
	key := r.sessionKey(sid)
	username, err := r.rdb.HGet(ctx, key, "user").Result()
	if errors.Is(err, redis.Nil) {
		return issued{}, "", "", errSessionInvalid
	}
	if err != nil {
		return issued{}, "", "", err
	}
	if revoked, err := r.isRevoked(ctx, sid); err != nil {
		return issued{}, "", "", err
	} else if revoked {
		return issued{}, "", "", errSessionInvalid
	}
	gen, err := r.generation(ctx)
	if err != nil {
		return issued{}, "", "", err
	}

	var next issued
	if next.refresh, err = internal.NewOpaqueToken(); err != nil {
		return issued{}, "", "", err
	}
	if next.csrf, err = internal.NewOpaqueToken(); err != nil {
		return issued{}, "", "", err
	}
	nextDigest := internal.HashToken(next.refresh)
	ok, err := rotateLua.Run(ctx, r.rdb,
		[]string{key, r.refreshKey(digest), r.refreshKey(nextDigest)},
		digest, csrf, nextDigest, next.csrf,
		strconv.FormatInt(gen, 10),
		strconv.FormatInt(r.refreshTTL.Milliseconds(), 10),
		sid,
	).Int()
	if err != nil {
		return issued{}, "", "", fmt.Errorf("rotate session: %w", err)
	}
	if ok != 1 {
		return issued{}, "", "", errSessionInvalid
	}
	return next, sid, username, nil
}

// revoke deletes sid and blocks its outstanding access tokens.
func (r *sessionRegistry) revoke(ctx context.Context, sid string) error {
	digest, err := r.rdb.HGet(ctx, r.sessionKey(sid), "refresh").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := r.rdb.TxPipeline()
	if digest != "" {
		pipe.Del(ctx, r.refreshKey(digest))
	}
	pipe.Del(ctx, r.sessionKey(sid))
	pipe.Set(ctx, r.revokedKey(sid), "1", r.accessTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *sessionRegistry) isRevoked(ctx context.Context, sid string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.revokedKey(sid)).Result()
	return n == 1, err
}

// state classifies the access token of sid.
func (r *sessionRegistry) state(ctx context.Context, sid string) (sessionState, error) {
	revoked, err := r.isRevoked(ctx, sid)
	if err != nil {
		return sessionMissing, err
	}
	if revoked {
		return sessionRevoked, nil
	}
	stored, err := r.rdb.HGet(ctx, r.sessionKey(sid), "gen").Int64()
	if errors.Is(err, redis.Nil) {
		return sessionMissing, nil
	}
	if err != nil {
		return sessionMissing, err
	}
	gen, err := r.generation(ctx)
	if err != nil {
		return sessionMissing, err
	}
	if stored < gen {
		return sessionStale, nil
	}
	return sessionActive, nil
}

// expireAccess invalidates every access token issued so far.
func (r *sessionRegistry) expireAccess(ctx context.Context) error {
	return r.rdb.Incr(ctx, r.genKey()).Err()
}
