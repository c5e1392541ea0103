package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/opengroup/internal/config"
)

// BuildConnString builds the PostgreSQL URL of the root database.
func BuildConnString(cfg config.DBConfig) string {
	return connURL(cfg, nil).String()
}

// RoomConnString builds the URL of a room pool: the root database with the
// room's schema as search_path.
func RoomConnString(cfg config.DBConfig, roomID int64) string {
	return connURL(cfg, url.Values{"search_path": {SchemaName(roomID)}}).String()
}

// connURL assembles the connection URL. Query parameters are sorted by
// name; params pgx does not know are sent to the server as runtime params.
func connURL(cfg config.DBConfig, params url.Values) *url.URL {
	query := url.Values{"sslmode": {cfg.SSLMode}}
	if cfg.SSLMode == "" {
		query.Set("sslmode", config.DefaultDBSSLMode)
	}
	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}
	for k, v := range params {
		query[k] = v
	}

	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
}
