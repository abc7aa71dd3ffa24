package arnsmachine

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/mborders/logmatic"
)

// verbosity orders the levels from quietest to loudest. Debug sits above info.
var verbosity = map[int]int{0: 0, 1: 1, 2: 2, 4: 3, 3: 4, 5: 5}

// LogCLI logs to the terminal. Level options are: 0 fatal error (stack dump, then Shutdown), 1 serious error (stack dump),
// 2 warning, 3 debug, 4 info, 5 trace (stack dump). Anything louder than the configured logLevel is dropped; fatal and
// serious errors never are.
func LogCLI(message interface{}, level int) {
	if level > 1 && conf != nil && verbosity[level] > verbosity[conf.GetInt("logLevel")] {
		return
	}
	l := logmatic.NewLogger()
	l.SetLevel(logmatic.TRACE)
	l.ExitOnFatal = true
	message = fmt.Sprint(message)
	switch level {
	case 5:
		debug.PrintStack()
		l.Trace("%v", message)
	case 4:
		l.Info("%v", message)
	case 3:
		l.Debug("%v", message)
	case 2:
		l.Warn("%v", message)
	case 1:
		debug.PrintStack()
		l.Error("%v", message)
	case 0:
		debug.PrintStack()
		l.Error("%v", message)
		Shutdown()
	}
}

// LogMind appends a trace of a mind's activity to rootDir/actorMessages.log so that an
// action can be followed through every engine it touched.
func LogMind(log MindLog) bool {
	if conf == nil || !conf.GetBool("logActors") {
		return true
	}
	entry := time.Now().String() + fmt.Sprintf("%#v", log) + "\n\n"
	f, err := os.OpenFile(conf.GetString("rootDir")+"/actorMessages.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		LogCLI(err, 1)
		return false
	}
	defer f.Close()
	_, err = io.WriteString(f, entry)
	return err == nil
}
