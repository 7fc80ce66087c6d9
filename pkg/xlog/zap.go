package xlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Zap = zap.NewExample()

	EnvMode  = "development"
	EnvColor = false

	optsName    string
	optsLogPath string
)

func init() {
	if mode := os.Getenv("XLOG_MODE"); mode != "" {
		EnvMode = mode
	}

	color := os.Getenv("XLOG_COLOR")
	EnvColor = color != "" && color != "false" && color != "0"
}

// Init builds the shared zap logger, writing json lines to a rotated file
// and human-readable lines to stdout.
func Init(name string, logPath string) {
	if name == "" {
		name = "x"
	}
	if logPath == "" {
		logPath = path.Join("", "logs", name+".log")
	}

	optsName = name
	optsLogPath = logPath

	Zap = NewZap(EnvMode != "release")
	Zap.Info("zap init succeed", FileField())
}

func NewZap(debug bool) *zap.Logger {
	hook := lumberjack.Logger{
		Filename:   optsLogPath,
		MaxSize:    128, // MB per file
		MaxAge:     30,  // days
		MaxBackups: 30,
		Compress:   false,
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "file",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	atomicLevel := zap.NewAtomicLevel()
	if debug {
		atomicLevel.SetLevel(zap.DebugLevel)
	} else {
		atomicLevel.SetLevel(zap.InfoLevel)
	}

	writes := []zapcore.WriteSyncer{
		zapcore.AddSync(&hook),
		zapcore.AddSync(&stdoutWriter{color: EnvColor}),
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writes...),
		atomicLevel,
	)

	return zap.New(core, zap.Development(), zap.Fields(zap.String("app", optsName)))
}

// stdoutWriter re-renders the json log entry as a compact colored line
type stdoutWriter struct {
	color bool
}

const colorReset = "\033[0m"

var levelColors = map[string]string{
	"debug":   "\033[1;36m",
	"warn":    "\033[1;33m",
	"warning": "\033[1;33m",
	"error":   "\033[1;31m",
	"fatal":   "\033[1;31m",
}

func (l *stdoutWriter) Write(p []byte) (n int, err error) {
	entry := map[string]interface{}{}
	err = json.Unmarshal(p, &entry)
	if err != nil {
		return
	}

	pre, sub := "", ""
	if l.color {
		if c, ok := levelColors[fmt.Sprintf("%s", entry["level"])]; ok {
			pre, sub = c, colorReset
		}
	}

	tStr := fmt.Sprintf("%s", entry["time"])
	if t, err := time.Parse("2006-01-02T15:04:05.999Z07:00", tStr); err == nil {
		tStr = t.Format("2006/01/02 15:04:05")
	}

	fname, _ := entry["file"].(string)
	if len(fname) < 20 {
		fname = fname + strings.Repeat(" ", 20-len(fname))
	} else {
		fname = fname[len(fname)-20:]
	}

	fmt.Printf(pre+"[%s] %s %s: %s"+sub+"\n", entry["app"], tStr, fname, entry["msg"])
	return len(p), nil
}

func FileField() zap.Field {
	return zap.String("file", fileWithLineNum())
}

func fileWithLineNum() string {
	var (
		file string
		line int
	)

	for i := 0; i < 15; i++ {
		_, _file, _line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if !strings.Contains(_file, "/pkg/xlog/") &&
			!strings.Contains(_file, "/pkg/model/xgorm/") &&
			!strings.Contains(_file, "gorm.io/gorm") {

			file = _file
			line = _line
			break
		}
	}

	var dir, fname string
	ss := strings.Split(file, "/")
	if len(ss) > 0 {
		fname = ss[len(ss)-1]
	}
	if len(ss) > 1 {
		dir = ss[len(ss)-2]
	}

	return fmt.Sprintf("%s/%s:%d", dir, fname, line)
}
