package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/re-cinq/patchwash/internal/bench"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <predictions-file>",
	Short: "Browse a predictions.jsonl file interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preds, err := loadPredictions(args[0])
		if err != nil {
			return err
		}
		return inspectLoop(preds, os.Stdout)
	},
}

func loadPredictions(path string) ([]bench.Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening predictions file: %w", err)
	}
	defer f.Close()

	var out []bench.Prediction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var p bench.Prediction
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, fmt.Errorf("parsing prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, scanner.Err()
}

// inspectLoop runs a minimal readline REPL: "list" prints every
// instance's one-line summary truncated to terminal width, "show <index>"
// prints a prediction's full detail, "quit" exits.
func inspectLoop(preds []bench.Prediction, out io.Writer) error {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	rl, err := readline.New("patchwash> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil
		case "list":
			for i, p := range preds {
				fmt.Fprintln(out, runewidth.Truncate(summaryLine(i, p), width, "..."))
			}
		case "show":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: show <index>")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil || idx < 0 || idx >= len(preds) {
				fmt.Fprintln(out, "invalid index")
				continue
			}
			data, _ := json.MarshalIndent(preds[idx], "", "  ")
			fmt.Fprintln(out, string(data))
		default:
			fmt.Fprintln(out, "commands: list, show <index>, quit")
		}
	}
}

func summaryLine(i int, p bench.Prediction) string {
	status := "fail"
	if p.CleanResolution {
		status = "clean"
	} else if p.PatchGateValid {
		status = "gate_ok"
	}
	return fmt.Sprintf("[%d] %s  attempts=%d  f2p=%.2f  p2p_fail=%d  %s", i, p.InstanceID, p.AttemptsUsed, p.F2PPassRate, p.P2PSmokeFailures, status)
}
