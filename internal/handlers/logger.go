package handlers

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/mattn/go-isatty"
)

// Color constants for terminal output
const (
	cBlue    = "\u001b[94m"
	cCyan    = "\u001b[96m"
	cGreen   = "\u001b[92m"
	cMagenta = "\u001b[95m"
	cRed     = "\u001b[91m"
	cWhite   = "\u001b[97m"
	cYellow  = "\u001b[93m"
	cReset   = "\u001b[0m"
)

const accessLogFormat = "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n"

func getStatusColor(status int, enableColors bool) string {
	if !enableColors {
		return ""
	}

	switch {
	case status >= 200 && status < 300:
		return cGreen
	case status >= 300 && status < 400:
		return cBlue
	case status >= 400 && status < 500:
		return cYellow
	default:
		return cRed
	}
}

func getMethodColor(method string, enableColors bool) string {
	if !enableColors {
		return ""
	}

	switch method {
	case fiber.MethodGet:
		return cCyan
	case fiber.MethodPost:
		return cGreen
	case fiber.MethodPut:
		return cYellow
	case fiber.MethodDelete:
		return cRed
	case fiber.MethodPatch:
		return cMagenta
	case fiber.MethodHead:
		return cBlue
	case fiber.MethodOptions:
		return cWhite
	default:
		return cReset
	}
}

// AccessLogConfig controls the access log middleware.
type AccessLogConfig struct {
	// Output defaults to stdout.
	Output io.Writer
	// SampledPaths are logged once every SampleEvery requests. Health
	// checks from load balancers would otherwise drown everything else.
	SampledPaths []string
	SampleEvery  uint64
}

// AccessLogger logs one line per request. Colors are used only when stdout
// is a terminal that wants them.
func AccessLogger(cfg AccessLogConfig) fiber.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.SampleEvery == 0 {
		cfg.SampleEvery = 10
	}

	enableColors := out == os.Stdout &&
		isatty.IsTerminal(os.Stdout.Fd()) &&
		os.Getenv("NO_COLOR") != "1" &&
		os.Getenv("TERM") != "dumb"

	defaultLogger := logger.New(logger.Config{
		Format:        accessLogFormat,
		Output:        out,
		DisableColors: !enableColors,
	})

	counters := make(map[string]*atomic.Uint64, len(cfg.SampledPaths))
	for _, p := range cfg.SampledPaths {
		counters[p] = new(atomic.Uint64)
	}

	return func(c *fiber.Ctx) error {
		counter, sampled := counters[c.Path()]
		if !sampled {
			return defaultLogger(c)
		}

		n := counter.Add(1)
		if n%cfg.SampleEvery != 0 {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		method := c.Method()
		resetColor := ""
		if enableColors {
			resetColor = cReset
		}

		errText := ""
		if err != nil {
			errText = err.Error()
		}
		fmt.Fprintf(out, "%s | %s%d%s | %13s | %s | %s%s%s | %s | %s [sampled: %d calls]\n",
			time.Now().Format("15:04:05"),
			getStatusColor(status, enableColors), status, resetColor,
			duration,
			c.IP(),
			getMethodColor(method, enableColors), method, resetColor,
			c.Path(),
			errText,
			cfg.SampleEvery)
		return err
	}
}
