package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/storefeedback/qrverify/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN (empty = in-memory gateway)
//	-seed string  seed file for the in-memory gateway
//	-r string   Redis URL for shared rate limiting
//	-s string   operator JWT HMAC secret key
//	-t int      session TTL, minutes
//	-k string   comma-separated Kafka brokers
//	-b string   S3 bucket for finalized verification records
//	-l string   log level (debug, info, warn, error)
//	-trusted-proxies string  comma-separated proxy IPs or CIDRs
//
// Duration flags are accepted as integers in minutes and converted to time.Duration.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-seed", "-r", "-s", "-t", "-k", "-b", "-l", "-trusted-proxies"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SeedFile, "seed", config.SeedFile, "seed file for the in-memory gateway")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL for rate limiting")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session TTL (in minutes)")
	kafkaBrokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "kafka brokers, comma separated")
	trustedProxies := fs.String("trusted-proxies", strings.Join(config.TrustedProxies, ","), "trusted proxy IPs or CIDRs, comma separated")

	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for verification records")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.KafkaBrokers = splitList(*kafkaBrokers)
	config.TrustedProxies = splitList(*trustedProxies)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
