package logger

import (
	"log"
	"os"
)

// 全服务共用的两路日志：生产者、各消费者角色和 Web 层都通过这里输出，
// 日志行以 [Producer]、[Persistence]、[Odds] 这样的前缀标识来源。
var (
	// Info 正常日志，输出到 stdout
	Info *log.Logger

	// Error 错误日志（丢弃的消息、重试耗尽等），输出到 stderr
	Error *log.Logger
)

func init() {
	Info = log.New(os.Stdout, "", log.LstdFlags)
	Error = log.New(os.Stderr, "", log.LstdFlags)
}

// Println 输出正常日志
func Println(v ...interface{}) {
	Info.Println(v...)
}

// Printf 格式化输出正常日志
func Printf(format string, v ...interface{}) {
	Info.Printf(format, v...)
}

// Errorln 输出错误日志
func Errorln(v ...interface{}) {
	Error.Println(v...)
}

// Errorf 格式化输出错误日志
func Errorf(format string, v ...interface{}) {
	Error.Printf(format, v...)
}

// Fatalf 输出致命错误并退出，只用于启动阶段的不可恢复失败
func Fatalf(format string, v ...interface{}) {
	Error.Fatalf(format, v...)
}
