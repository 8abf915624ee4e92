package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sharad-cli/internal/character"
	"sharad-cli/internal/schema"
)

//
// ---------------------------------------------------------
// Turn Logger
// ---------------------------------------------------------
//

// TurnLogger 记录一个回合内的全部往来：玩家行动、run 状态、工具调用与结果、
// 角色更新以及 assistant 的最终消息。每个回合写入一个独立文件。
// 内部使用互斥锁，图像任务等后台协程也可以安全写入。
type TurnLogger struct {
	logDir   string     // 日志目录 (~/.sharad/log)
	logFile  *os.File   // 当前回合的日志文件句柄
	logIndex int        // 日志条目计数器
	mu       sync.Mutex // 互斥锁，保证所有操作并发安全
}

// NewTurnLogger 创建日志管理器，dir 为空时使用 ~/.sharad/log。
func NewTurnLogger(dir string) (*TurnLogger, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine user home directory: %w", err)
		}
		dir = filepath.Join(home, ".sharad", "log")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}

	return &TurnLogger{logDir: dir}, nil
}

//
// ---------------------------------------------------------
// Log File Control
// ---------------------------------------------------------
//

// StartTurn 开启新回合的日志文件，并把玩家行动写为第一条记录。
func (l *TurnLogger) StartTurn(thread, action string) error {
	l.mu.Lock()

	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}

	timestamp := time.Now().Format("20060102_150405.000")
	logPath := filepath.Join(l.logDir, fmt.Sprintf("turn_%s.log", strings.ReplaceAll(timestamp, ".", "_")))

	file, err := os.Create(logPath)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to create log file: %w", err)
	}

	l.logFile = file
	l.logIndex = 0

	header := fmt.Sprintf("%s\nTurn Log - %s\nThread: %s\n%s\n",
		strings.Repeat("=", 80),
		time.Now().Format("2006-01-02 15:04:05"),
		thread,
		strings.Repeat("=", 80),
	)
	_, err = file.WriteString(header)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed writing header: %w", err)
	}

	return l.writeLog("ACTION", action)
}

//
// ---------------------------------------------------------
// Write to Log File
// ---------------------------------------------------------
//

func safeJSON(v any) []byte {
	j, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Appendf(nil, `{"error": "json marshal failed: %v"}`, err)
	}
	return j
}

// writeLog 追加一条记录：类型、编号、时间戳、内容。
func (l *TurnLogger) writeLog(logType, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return fmt.Errorf("log file not initialized (StartTurn not called?)")
	}

	l.logIndex++

	entry := fmt.Sprintf(
		"\n%s\n[%d] %s\nTimestamp: %s\n%s\n%s\n",
		strings.Repeat("-", 80),
		l.logIndex,
		logType,
		time.Now().Format("2006-01-02 15:04:05.000"),
		strings.Repeat("-", 80),
		content,
	)

	if _, err := l.logFile.WriteString(entry); err != nil {
		return fmt.Errorf("write log failed: %w", err)
	}

	return l.logFile.Sync()
}

//
// ---------------------------------------------------------
// Entries
// ---------------------------------------------------------
//

// LogRun 记录一次轮询得到的 run 快照
func (l *TurnLogger) LogRun(run *schema.Run) error {
	return l.writeLog("RUN", string(safeJSON(run)))
}

// LogToolCall 记录 assistant 请求的工具调用
func (l *TurnLogger) LogToolCall(tc schema.ToolCall) error {
	data := map[string]any{
		"id":   tc.ID,
		"name": tc.Name,
	}
	var args any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		data["arguments"] = tc.Arguments
	} else {
		data["arguments"] = args
	}
	return l.writeLog("TOOL_CALL", string(safeJSON(data)))
}

// LogToolResult 记录提交给 assistant 的工具输出
func (l *TurnLogger) LogToolResult(tc schema.ToolCall, success bool, output string) error {
	data := map[string]any{
		"id":      tc.ID,
		"name":    tc.Name,
		"success": success,
		"output":  output,
	}
	return l.writeLog("TOOL_RESULT", string(safeJSON(data)))
}

// LogUpdate 记录应用到角色上的一组更新，err 非 nil 时一并写出被拒绝的部分
func (l *TurnLogger) LogUpdate(name string, updates []character.Update, err error) error {
	data := map[string]any{
		"character": name,
		"updates":   updates,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return l.writeLog("UPDATE", string(safeJSON(data)))
}

// LogResponse 记录 assistant 的最终消息原文
func (l *TurnLogger) LogResponse(raw string) error {
	return l.writeLog("RESPONSE", raw)
}

// LogError 记录结束回合的错误
func (l *TurnLogger) LogError(err error) error {
	return l.writeLog("ERROR", err.Error())
}

//
// ---------------------------------------------------------
// File Control
// ---------------------------------------------------------
//

// Path 返回当前日志文件的路径
func (l *TurnLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return ""
	}
	return l.logFile.Name()
}

// Close 关闭日志文件
func (l *TurnLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}
