package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
)

// ErrNoCommand is returned when a real download is needed but no command is configured.
var ErrNoCommand = errors.New("no browser command configured")

const (
	actionFetch    = "fetch"
	actionValidate = "validate"

	maxStderrExcerpt = 512
	waitDelay        = 2 * time.Second
)

// CommandConfig configures the external download command.
type CommandConfig struct {
	// Argv is the command and its arguments.
	Argv               []string
	DownloadsDir       string
	StateDir           string
	Headless           bool
	ActionTimeout      time.Duration
	Timeout            time.Duration
	ScreenshotsOnError bool
	Logger             *zap.Logger
}

var (
	_ Acquirer = (*Command)(nil)
	_ Checker  = (*Command)(nil)
)

// Command runs a browser-automation program that logs into a vendor
// portal and saves the invoice. Parameters are passed as EXPENSIFY_OS_*
// environment variables. The program may print a JSON object
// {"receipt_path": "...", "amount_text": "..."} on stdout.
type Command struct {
	cfg    CommandConfig
	logger *zap.Logger
}

// NewCommand creates a Command acquirer.
func NewCommand(cfg CommandConfig) *Command {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{cfg: cfg, logger: logger}
}

type commandReply struct {
	ReceiptPath string `json:"receipt_path"`
	AmountText  string `json:"amount_text"`
}

// Acquire runs the command and returns the receipt it produced.
func (c *Command) Acquire(ctx context.Context, req Request) (Receipt, error) {
	output := Path(c.cfg.DownloadsDir, req.Plugin, req.Month)
	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return Receipt{}, fmt.Errorf("create downloads dir: %w", err)
	}

	stdout, err := c.run(ctx, actionFetch, req, output)
	if err != nil {
		return Receipt{}, err
	}

	reply, err := parseReply(stdout)
	if err != nil {
		return Receipt{}, fmt.Errorf("%s receipt command: %w", req.Plugin, err)
	}

	rcpt := Receipt{AmountText: reply.AmountText}
	if req.DryRun {
		return rcpt, nil
	}

	path := reply.ReceiptPath
	if path == "" {
		path = output
	}
	if _, err := os.Stat(path); err != nil {
		return Receipt{}, fmt.Errorf("%s receipt %s: %w", req.Plugin, path, domain.ErrReceiptNotFound)
	}
	rcpt.Path = path
	return rcpt, nil
}

// Check runs the command in validate mode; exit status 0 means the portal accepted the login.
func (c *Command) Check(ctx context.Context, plugin string, credentials map[string]string) error {
	_, err := c.run(ctx, actionValidate, Request{Plugin: plugin, Credentials: credentials, DryRun: true}, "")
	return err
}

func (c *Command) run(ctx context.Context, action string, req Request, output string) ([]byte, error) {
	if len(c.cfg.Argv) == 0 {
		return nil, fmt.Errorf("%s receipt: %w", req.Plugin, ErrNoCommand)
	}
	stateDir, err := StateDir(c.cfg.StateDir, req.Plugin)
	if err != nil {
		return nil, err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.Argv[0], c.cfg.Argv[1:]...) //nolint:gosec // argv comes from the operator's config
	cmd.Env = append(os.Environ(), c.env(action, req, output, stateDir)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	c.logger.Info("Running receipt command",
		zap.String("plugin", req.Plugin),
		zap.String("action", action),
		zap.Bool("dry_run", req.DryRun),
	)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s receipt command: %w", req.Plugin, ctxErr)
		}
		return nil, fmt.Errorf("%s receipt command: %w: %s", req.Plugin, err, excerpt(stderr.String()))
	}
	c.logger.Debug("Receipt command finished",
		zap.String("plugin", req.Plugin),
		zap.Duration("duration", time.Since(start)),
	)
	return stdout.Bytes(), nil
}

func (c *Command) env(action string, req Request, output, stateDir string) []string {
	env := []string{
		"EXPENSIFY_OS_ACTION=" + action,
		"EXPENSIFY_OS_PLUGIN=" + req.Plugin,
		"EXPENSIFY_OS_OUTPUT=" + output,
		"EXPENSIFY_OS_STATE_DIR=" + stateDir,
		"EXPENSIFY_OS_HEADLESS=" + strconv.FormatBool(c.cfg.Headless),
		"EXPENSIFY_OS_TIMEOUT_MS=" + strconv.FormatInt(c.cfg.ActionTimeout.Milliseconds(), 10),
		"EXPENSIFY_OS_SCREENSHOTS_ON_ERROR=" + strconv.FormatBool(c.cfg.ScreenshotsOnError),
		"EXPENSIFY_OS_DRY_RUN=" + strconv.FormatBool(req.DryRun),
	}
	if action == actionFetch {
		env = append(env, "EXPENSIFY_OS_MONTH="+req.Month.String())
	}
	for k, v := range req.Credentials {
		env = append(env, "EXPENSIFY_OS_CRED_"+envName(k)+"="+v)
	}
	return env
}

// parseReply accepts empty output or a single JSON object.
func parseReply(out []byte) (commandReply, error) {
	var reply commandReply
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return reply, nil
	}
	if err := json.Unmarshal(trimmed, &reply); err != nil {
		return reply, fmt.Errorf("parse reply: %w", err)
	}
	return reply, nil
}

func envName(key string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || r == ' ' {
			return '_'
		}
		return r
	}, key))
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrExcerpt {
		return s[:maxStderrExcerpt] + "..."
	}
	return s
}
