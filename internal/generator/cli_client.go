package generator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/quizlab/adaptive-backend/internal/logger"
)

// CLIClient shells out to a locally installed model CLI for offline
// authoring. Usage counts are not reported.
type CLIClient struct {
	cliPath string
	log     *logger.Logger
}

func NewCLIClient(cliPath string, log *logger.Logger) *CLIClient {
	return &CLIClient{cliPath: cliPath, log: log}
}

func (c *CLIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx,
		c.cliPath,
		"--print",
		"--output-format", "text",
		"--system-prompt", systemPrompt,
		"--max-turns", "1",
	)
	cmd.Stdin = strings.NewReader(userPrompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.log.Warn("generator CLI failed", "path", c.cliPath, "error", err, "stderr", strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("run %s: %w", c.cliPath, err)
	}

	content := strings.TrimSpace(stdout.String())
	if content == "" {
		return nil, fmt.Errorf("%s returned an empty response", c.cliPath)
	}
	return &LLMResponse{Content: content}, nil
}
