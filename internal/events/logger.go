package events

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Name   string // node name, also the log file stem
	Dir    string // empty disables the log file
	Format string // "text" or "json"
	Level  logrus.Level
	Stderr io.Writer // defaults to os.Stderr
}

// NewLogger builds a logger that writes to stderr and, when Dir is set, to
// <Dir>/<Name>.log. The returned closer releases the file.
func NewLogger(opts LoggerOptions) (*logrus.Entry, io.Closer, error) {
	l := logrus.New()
	l.SetLevel(opts.Level)
	if opts.Level == 0 {
		l.SetLevel(logrus.InfoLevel)
	}

	switch opts.Format {
	case "json":
		l.SetFormatter(&JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.Create(filepath.Join(opts.Dir, opts.Name+".log"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create log file: %w", err)
		}
		l.SetOutput(io.MultiWriter(f, stderr))
		closer = f
	} else {
		l.SetOutput(stderr)
	}

	return l.WithField("node", opts.Name), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *JSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(map[string]any, len(entry.Data)+3)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			data[k] = err.Error()
			continue
		}
		data[k] = v
	}

	layout := f.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}
	data["time"] = entry.Time.Format(layout)
	data["level"] = entry.Level.String()
	data["msg"] = entry.Message

	out, err := sonnet.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(out, '\n'), nil
}
