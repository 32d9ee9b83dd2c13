package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI sequences used by the compact encoder when color is on
const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[38;5;107m" // muted green, timestamps
	ansiName  = "\x1b[38;5;208m" // orange, logger names
	ansiKey   = "\x1b[38;5;109m" // blue-green, field keys
	ansiWarn  = "\x1b[38;5;179m\x1b[48;5;58m"
	ansiError = "\x1b[38;5;167m\x1b[48;5;52m"
)

var bufferPool = buffer.NewPool()

// compactEncoder writes one calm line per entry:
//
//	13:04:35  WARN  project.detector  Marker unreadable  project_root=/novel error=...
//
// The level is only shown for non-info entries. Every field is printed as
// key=value; nothing is dropped.
type compactEncoder struct {
	// context holds fields added with Logger.With
	*zapcore.MapObjectEncoder
	color bool
}

func newCompactEncoder(color bool) *compactEncoder {
	return &compactEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

func (enc *compactEncoder) Clone() zapcore.Encoder {
	clone := newCompactEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *compactEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	line.AppendString(enc.paint(ansiDim, ent.Time.Format("15:04:05")))

	if ent.Level != zapcore.InfoLevel {
		line.AppendString("  ")
		line.AppendString(enc.levelString(ent.Level))
	}

	if ent.LoggerName != "" {
		line.AppendString("  ")
		line.AppendString(enc.paint(ansiName, ent.LoggerName))
	}

	line.AppendString("  ")
	line.AppendString(ent.Message)

	// context fields first, sorted, then call-site fields in call order
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.appendField(line, k, enc.Fields[k])
	}

	for _, f := range fields {
		m := zapcore.NewMapObjectEncoder()
		f.AddTo(m)
		// AddTo may expand one field into several keys (errors add
		// <key>Verbose with a stack trace); keep the terse ones
		fieldKeys := make([]string, 0, len(m.Fields))
		for k := range m.Fields {
			if strings.HasSuffix(k, "Verbose") {
				continue
			}
			fieldKeys = append(fieldKeys, k)
		}
		sort.Strings(fieldKeys)
		for _, k := range fieldKeys {
			enc.appendField(line, k, m.Fields[k])
		}
	}

	if ent.Stack != "" {
		line.AppendString("\n")
		line.AppendString(ent.Stack)
	}
	line.AppendString("\n")
	return line, nil
}

func (enc *compactEncoder) appendField(line *buffer.Buffer, key string, value interface{}) {
	line.AppendString("  ")
	line.AppendString(enc.paint(ansiKey, key))
	line.AppendString("=")
	line.AppendString(fmt.Sprint(value))
}

func (enc *compactEncoder) levelString(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return enc.paint(ansiDim, "DEBUG")
	case zapcore.WarnLevel:
		return enc.paint(ansiBold+ansiWarn, "WARN")
	default:
		return enc.paint(ansiBold+ansiError, level.CapitalString())
	}
}

func (enc *compactEncoder) paint(code, s string) string {
	if !enc.color {
		return s
	}
	return code + s + ansiReset
}
