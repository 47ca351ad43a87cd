// Command loonysql is a minimal interactive client: it reads one SQL
// statement per line from stdin and prints tab separated rows.
//
// Connection settings come from flags, falling back to the PG_HOST, PG_PORT,
// PG_DATABASE, PG_USER, and PG_PASSWORD environment variables.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	loonypg "github.com/loony-js/loony-postgres"
	"github.com/loony-js/loony-postgres/log/zerologadapter"
)

func main() {
	var (
		host     = flag.String("host", envStr("PG_HOST", "localhost"), "server host")
		port     = flag.Int("port", envInt("PG_PORT", 5432), "server port")
		database = flag.String("database", envStr("PG_DATABASE", ""), "database name")
		user     = flag.String("user", envStr("PG_USER", ""), "user name")
		password = flag.String("password", envStr("PG_PASSWORD", ""), "password")
		logLevel = flag.String("log-level", "warn", "log verbosity (trace, debug, info, warn, error, none)")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	level, err := loonypg.LogLevelFromString(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -log-level")
	}

	config := &loonypg.Config{
		Host:     *host,
		Port:     uint16(*port),
		Database: *database,
		User:     *user,
		Password: *password,
		Logger:   zerologadapter.NewLogger(logger),
		LogLevel: level,
	}

	ctx := context.Background()

	conn, err := loonypg.ConnectConfig(ctx, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect failed")
	}
	defer conn.Close(ctx)

	if version, err := conn.ServerVersion(); err == nil {
		logger.Info().Str("serverVersion", version.String()).Msg("connected")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scanner.Scan() {
		sql := strings.TrimSpace(scanner.Text())
		if sql == "" {
			continue
		}

		result, err := conn.Query(ctx, sql)
		if err != nil {
			var pgErr *loonypg.PgError
			if errors.As(err, &pgErr) {
				logger.Error().Str("code", pgErr.Code).Msg(pgErr.Message)
				continue
			}
			logger.Fatal().Err(err).Msg("query failed")
		}

		printResult(out, result)
		out.Flush()
	}

	if err := scanner.Err(); err != nil {
		logger.Fatal().Err(err).Msg("reading stdin")
	}
}

func printResult(out *bufio.Writer, result *loonypg.Result) {
	if len(result.FieldDescriptions) > 0 {
		names := make([]string, len(result.FieldDescriptions))
		for i, fd := range result.FieldDescriptions {
			names[i] = fd.Name
		}
		fmt.Fprintln(out, strings.Join(names, "\t"))
	}

	for _, row := range result.Rows {
		cols := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cols[i] = "NULL"
			} else {
				cols[i] = string(v)
			}
		}
		fmt.Fprintln(out, strings.Join(cols, "\t"))
	}

	fmt.Fprintln(out, string(result.CommandTag))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
