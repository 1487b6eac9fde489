package main

import "time"

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	ReaperInterval       time.Duration `env:"REAPER_INTERVAL,required=true"`
	SchedulerInterval    time.Duration `env:"SCHEDULER_INTERVAL,required=true"`
	MessageSecret        string        `env:"MESSAGE_SECRET,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BrokerURL            string        `env:"BROKER_URL,required=true"`
	PushExchange         string        `env:"PUSH_EXCHANGE,required=true"`
	BrokerRetryAttempts  int           `env:"BROKER_RETRY_ATTEMPTS,default=5"`
	BrokerRetryDelay     time.Duration `env:"BROKER_RETRY_DELAY,default=1s"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
}
