package presence

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DeviceArg in a detector argument is replaced with the device index.
const DeviceArg = "{device}"

var (
	errTimeout    = errors.New("no frame before read timeout")
	errExited     = errors.New("detector exited")
	errBadVerdict = errors.New("bad detector line")
)

// CommandSampler runs an external face detector and reads one verdict per
// frame from its stdout. A verdict line is "<found> [confidence]" where
// found is 0/1 or true/false. The detector signals a failed frame read by
// printing "error" followed by an optional message.
type CommandSampler struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	lines   chan string
	timeout time.Duration
	done    chan struct{}
}

// CommandOpener returns an Opener that starts name with args for a device.
// Every DeviceArg in args is replaced with the device index.
func CommandOpener(name string, args []string, timeout time.Duration) Opener {
	return func(index int) (Sampler, error) {
		expanded := make([]string, len(args))
		for i, a := range args {
			expanded[i] = strings.ReplaceAll(a, DeviceArg, strconv.Itoa(index))
		}
		return StartCommand(name, expanded, timeout)
	}
}

func StartCommand(name string, args []string, timeout time.Duration) (*CommandSampler, error) {
	if name == "" {
		return nil, errors.New("start detector: no command configured")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("detector stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start detector %s: %w", name, err)
	}

	s := &CommandSampler{
		cmd:     cmd,
		cancel:  cancel,
		lines:   make(chan string, 8),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go s.read(stdout)
	return s, nil
}

func (s *CommandSampler) read(r io.Reader) {
	defer close(s.done)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		default:
			// Keep only fresh frames: drop the oldest queued verdict.
			select {
			case <-s.lines:
			default:
			}
			s.lines <- line
		}
	}
}

func (s *CommandSampler) Sample(ctx context.Context) (Detection, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case line := <-s.lines:
		return ParseVerdict(line)
	case <-s.done:
		// Drain whatever the detector printed before exiting.
		select {
		case line := <-s.lines:
			return ParseVerdict(line)
		default:
		}
		return Detection{}, errExited
	case <-timer.C:
		return Detection{}, errTimeout
	case <-ctx.Done():
		return Detection{}, ctx.Err()
	}
}

// Close kills the detector and waits for it to exit.
func (s *CommandSampler) Close() error {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	// The exit status of a killed detector carries no information.
	_ = s.cmd.Wait()
	return nil
}

// ParseVerdict parses one detector line.
func ParseVerdict(line string) (Detection, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Detection{}, errBadVerdict
	}
	if strings.EqualFold(fields[0], "error") {
		return Detection{}, fmt.Errorf("detector: %s", strings.Join(fields[1:], " "))
	}
	found, err := strconv.ParseBool(fields[0])
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %q", errBadVerdict, line)
	}
	d := Detection{Found: found}
	if found {
		d.Confidence = 1
	}
	if len(fields) > 1 {
		c, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || c < 0 || c > 1 {
			return Detection{}, fmt.Errorf("%w: confidence %q", errBadVerdict, fields[1])
		}
		d.Confidence = c
	}
	return d, nil
}
