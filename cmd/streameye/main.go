package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/liqinliqin/streameye/internal/logger"
	"github.com/liqinliqin/streameye/internal/server"
)

const version = "0.9"

var (
	// Command-line flags
	debugMode   = flag.Bool("d", false, "debug mode, increased log verbosity")
	showHelp    = flag.Bool("h", false, "print this help text")
	localhost   = flag.Bool("l", false, "listen only on localhost interface")
	tcpPort     = flag.Int("p", 8080, "tcp port to listen on")
	quietMode   = flag.Bool("q", false, "quiet mode, log only errors")
	separator   = flag.String("s", "", "a separator between jpeg frames received at input (will autodetect jpeg frame starts by default)")
	readTimeout = flag.Int("t", 10, "client read timeout, in seconds")
	metricsAddr = flag.String("metrics", "", "prometheus metrics address (empty disables)")
	logColor    = flag.Bool("log-color", false, "enable colored log output")
)

func printHelp() {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "streamEye %s\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage: <jpeg stream> | streameye [options]\n")
	fmt.Fprintf(os.Stderr, "Available options:\n")
	fmt.Fprintf(os.Stderr, "    -d                 debug mode, increased log verbosity\n")
	fmt.Fprintf(os.Stderr, "    -h                 print this help text\n")
	fmt.Fprintf(os.Stderr, "    -l                 listen only on localhost interface\n")
	fmt.Fprintf(os.Stderr, "    -p port            tcp port to listen on (defaults to 8080)\n")
	fmt.Fprintf(os.Stderr, "    -q                 quiet mode, log only errors\n")
	fmt.Fprintf(os.Stderr, "    -s separator       a separator between jpeg frames received at input\n")
	fmt.Fprintf(os.Stderr, "                       (will autodetect jpeg frame starts by default)\n")
	fmt.Fprintf(os.Stderr, "    -t timeout         client read timeout, in seconds (defaults to 10)\n")
	fmt.Fprintf(os.Stderr, "    -metrics address   prometheus metrics address (disabled by default)\n")
	fmt.Fprintf(os.Stderr, "    -log-color         enable colored log output\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	level := logger.INFO
	if *debugMode {
		level = logger.DEBUG
	}
	if *quietMode {
		level = logger.ERROR
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "streamEye %s", version)
	logger.Info("Main", "hello!")

	sep := []byte(*separator)
	if len(sep) > 0 && len(sep) < 4 {
		logger.Info("Main", "the input separator supplied is very likely to appear in the actual frame data (consider a longer one)")
	}

	cfg := server.DefaultConfig()
	cfg.Port = *tcpPort
	cfg.ListenLocalhost = *localhost
	cfg.ClientReadTimeout = time.Duration(*readTimeout) * time.Second
	cfg.Separator = sep
	cfg.MetricsAddr = *metricsAddr

	srv := server.New(cfg, os.Stdin)
	if err := srv.Start(); err != nil {
		logger.Error("Main", "failed to start server: %v", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Main", "interrupt received, quitting")
		go ignoreFurtherSignals(sigChan)
	case <-srv.Done():
	}

	srv.Stop()
	logger.Info("Main", "bye!")
}

// ignoreFurtherSignals drains signals delivered while shutdown is already
// in progress, logging the first one.
func ignoreFurtherSignals(sigChan <-chan os.Signal) {
	var once sync.Once
	for range sigChan {
		once.Do(func() {
			logger.Info("Main", "interrupt already received, ignoring signal")
		})
	}
}
