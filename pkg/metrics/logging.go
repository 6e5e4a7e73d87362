package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// LogFormatter forwards every entry to New Relic, with its fields folded
// into the message, and enriches the locally formatted line with linking
// metadata. The stock nrlogrus formatter drops entry fields.
type LogFormatter struct {
	app       *newrelic.Application
	formatter logrus.Formatter
}

func NewCustomNewRelicLogFormatter(app *newrelic.Application, formatter logrus.Formatter) *LogFormatter {
	return &LogFormatter{
		app:       app,
		formatter: formatter,
	}
}

func (f *LogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	local, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}
	b := bytes.NewBuffer(bytes.TrimRight(local, "\n"))

	data := newrelic.LogData{
		Severity: e.Level.String(),
		Message:  remoteMessage(e),
	}

	var txn *newrelic.Transaction
	if e.Context != nil {
		txn = newrelic.FromContext(e.Context)
	}

	if txn != nil {
		txn.RecordLog(data)
		err = newrelic.EnrichLog(b, newrelic.FromTxn(txn))
	} else {
		f.app.RecordLog(data)
		err = newrelic.EnrichLog(b, newrelic.FromApp(f.app))
	}
	if err != nil {
		return nil, err
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func remoteMessage(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}

	errString := "<nil>"
	fields := make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		if typed, ok := v.(error); ok && k == logrus.ErrorKey {
			errString = fmt.Sprintf("%q", typed.Error())
			continue
		}
		fields[k] = v
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return e.Message
	}
	return fmt.Sprintf("message=%q, error=%s, data=%s", e.Message, errString, encoded)
}
