// Package log provides per-job structured logging. Loggers are cached by
// job id so every line for a job carries the same context, and submitted
// source URLs are redacted before they reach the log stream.
package log

import (
	"net/url"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

// A pipeline job can sit in a software-AV1 encode for hours on a long
// source, so cached loggers must outlive the slowest plausible transcode.
var defaultLoggerCacheExpiry = 12 * time.Hour

var loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)

// AddContext permanently attaches keyvals to the logger for a job id. Any
// future logging for this job id includes this context.
func AddContext(jobID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(jobID), redactKeyvals(keyvals...)...)

	err := loggerCache.Replace(jobID, logger, defaultLoggerCacheExpiry)
	if err != nil {
		_ = logger.Log("msg", "error replacing logger in cache: "+err.Error())
	}
}

func Log(jobID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(jobID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogNoJobID logs in situations where no job id is available yet, such as
// request parsing failures before a job is created.
func LogNoJobID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(jobID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(jobID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

func getLogger(jobID string) kitlog.Logger {
	logger, found := loggerCache.Get(jobID)
	if found {
		return logger.(kitlog.Logger)
	}

	jobLogger := kitlog.With(newLogger(), "job_id", jobID)
	err := loggerCache.Add(jobID, jobLogger, defaultLoggerCacheExpiry)
	if err != nil {
		_ = jobLogger.Log("msg", "error adding logger to cache", "job_id", jobID, "err", err.Error())
	}
	return jobLogger
}

func newLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	var res []interface{}
	for i := range keyvals {
		if i%2 == 1 {
			k, v := keyvals[i-1], keyvals[i]
			res = append(res, k)
			switch s := v.(type) {
			case string:
				res = append(res, RedactURL(s))
			case url.URL:
				res = append(res, s.Redacted())
			case *url.URL:
				if s != nil {
					res = append(res, s.Redacted())
				}
			default:
				res = append(res, v)
			}
		}
	}
	return res
}

// RedactURL scrubs secrets from a submitted source before it is logged:
// userinfo credentials on http(s)/ftp(s) URLs, and everything but the
// content hash on magnet links, whose tracker parameters can carry
// private-tracker passkeys. Non-URL strings pass through untouched.
func RedactURL(str string) string {
	strLower := strings.ToLower(str)
	if strings.HasPrefix(strLower, "magnet:") {
		return redactMagnet(str)
	}
	if !strings.HasPrefix(strLower, "http") && !strings.HasPrefix(strLower, "ftp") {
		return str
	}

	u, err := url.Parse(str)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}

func redactMagnet(str string) string {
	u, err := url.Parse(str)
	if err != nil {
		return "magnet:REDACTED"
	}
	xt := u.Query().Get("xt")
	if xt == "" {
		return "magnet:REDACTED"
	}
	return "magnet:?xt=" + xt
}
