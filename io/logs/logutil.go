// Package logs adds persistent file output to the process-wide logrus
// logger and holds logging-related string helpers.
package logs

import (
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/sirupsen/logrus"
)

// ConfigurePersistentLogging tees every log line written to stdout into the
// given file as well.
func ConfigurePersistentLogging(logFileName string) error {
	logrus.WithField("logFileName", logFileName).Info("Logs will be made persistent")
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, params.KestrelIoConfig().ReadWritePermissions) // #nosec G304
	if err != nil {
		return err
	}
	logrus.SetOutput(io.MultiWriter(logrus.StandardLogger().Out, f))
	logrus.Info("File logging initialized")
	return nil
}

// MaskCredentialsLogging hides the userinfo, path, query and fragment of a
// URL before it is logged. Provider endpoints routinely embed API keys in
// the path. A string that does not parse as a URL is returned unchanged.
func MaskCredentialsLogging(currURL string) string {
	masked := currURL
	u, err := url.Parse(currURL)
	if err != nil {
		return currURL
	}
	if u.User != nil {
		masked = strings.Replace(masked, u.User.String(), "***", 1)
	}
	if len(u.RequestURI()) > 1 {
		masked = strings.Replace(masked, u.RequestURI(), "/***", 1)
	}
	if len(u.Fragment) > 0 {
		masked = strings.Replace(masked, u.RawFragment, "***", 1)
	}
	return masked
}
