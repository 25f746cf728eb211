package dbclient

import (
	"net"
	"strconv"
	"time"

	"dbpoll/internal/domain"

	"github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from a ConnectionConfig.
// Temporal columns are left as text so FromDriver sees the stored fields
// instead of a time.Time in the session zone.
func buildMySQLDSN(conn domain.ConnectionConfig, dialTimeout time.Duration) string {
	conn = conn.WithDefaults()

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	cfg.User = conn.User.OrElse("")
	cfg.Passwd = conn.Password.OrElse("")
	cfg.DBName = conn.Database.OrElse("")
	cfg.ParseTime = false
	cfg.Timeout = dialTimeout
	return cfg.FormatDSN()
}
