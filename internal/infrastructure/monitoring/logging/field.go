package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Field is one key-value pair of a log entry.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field            { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field        { return Field{Key: key, Value: val} }

// Stringer defers formatting of val until the entry is written.
func Stringer(key string, val fmt.Stringer) Field { return Field{Key: key, Value: val} }

// Err records err under "error".  Coded errors also get "error_code".
// A nil err adds nothing.
func Err(err error) Field { return Field{Key: "error", Value: err} }

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case nil:
			if f.Key != "error" {
				out = append(out, zap.Any(f.Key, nil))
			}
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case error:
			out = append(out, zap.String(f.Key, v.Error()))
			if code := errors.GetCode(v); code != errors.ErrCodeUnknown {
				out = append(out, zap.String(f.Key+"_code", string(code)))
			}
		case fmt.Stringer:
			out = append(out, zap.Stringer(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}
