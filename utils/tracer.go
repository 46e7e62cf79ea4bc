package utils

import (
	"github.com/sirupsen/logrus"
	"github.com/tweetbridge/tweetbridge/utils/flag"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// InitTracer starts the Datadog tracer. Should be called once from main.
func InitTracer() {
	env := "development"
	if flag.IsProdEnv() {
		env = "production"
	}

	tracer.Start(
		tracer.WithService(*flag.ServiceName),
		tracer.WithEnv(env),
	)

	Logger.Log.WithFields(
		logrus.Fields{"service": *flag.ServiceName},
	).Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	tracer.Stop()
}
