package fee

import "github.com/trezcool/ada/core"

type nopLogger struct{}

var _ core.Logger = (*nopLogger)(nil)

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// NewServiceMock returns a Service wired for tests: silent logger, test config.
func NewServiceMock(repo Repository, notifSvc core.NotificationService) Service {
	return NewService(repo, notifSvc, nopLogger{}, &core.Config{Env: "TEST", TestMode: true, AppName: "Ada"})
}
