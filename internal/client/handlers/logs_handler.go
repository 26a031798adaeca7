package handlers

import (
	"bufio"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/config"
)

// LogsHandler serves paginated daemon log lines from the rotating log file.
type LogsHandler struct {
	logFilePath string
}

func NewLogsHandler() *LogsHandler {
	return &LogsHandler{
		logFilePath: config.DefaultLogFilePath,
	}
}

// slog text handler format: time=... level=... msg="..."
var (
	logTimeRegex  = regexp.MustCompile(`time=([^\s]+)`)
	logLevelRegex = regexp.MustCompile(`level=([^\s]+)`)
	logMsgRegex   = regexp.MustCompile(`msg="([^"]+)"`)
)

// GetLogs godoc
//
//	@Summary		Get logs
//	@Description	Get daemon logs with pagination support
//	@Tags			logs
//	@Produce		json
//	@Param			startingToken	query		int	false	"Number of bytes to skip"			default(0)
//	@Param			maxResults		query		int	false	"Maximum number of lines to read"	default(100)
//	@Success		200				{object}	LogsResponse
//	@Failure		500				{object}	ControlPlaneError
//	@Router			/v1/logs [get]
//	@Security		APIToken
func (h *LogsHandler) GetLogs(c *gin.Context) {
	var params LogsRequest
	if err := c.ShouldBindQuery(&params); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeLogsRetrievalFailed, err)
		return
	}

	if params.MaxResults == 0 {
		params.MaxResults = 100
	}

	logs, nextToken, hasMore, err := h.readLogsFromFile(params.StartingToken, params.MaxResults)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeLogsRetrievalFailed, err)
		return
	}

	c.PureJSON(http.StatusOK, &LogsResponse{
		Logs:      logs,
		NextToken: nextToken,
		HasMore:   hasMore,
	})
}

func (h *LogsHandler) readLogsFromFile(startingToken int64, maxResults int) ([]LogEntry, int64, bool, error) {
	file, err := os.Open(h.logFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, 0, false, nil
		}
		return nil, 0, false, err
	}
	defer file.Close()

	if startingToken > 0 {
		if _, err := file.Seek(startingToken, 0); err != nil {
			return nil, 0, false, err
		}
	}

	var logs []LogEntry
	scanner := bufio.NewScanner(file)
	bytesRead := startingToken

	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		bytesRead += int64(len(line) + 1)

		entry, ok := parseLogLine(line)
		if !ok {
			continue
		}

		logs = append(logs, entry)
		count++

		// read one extra line to know whether more pages exist
		if count >= maxResults+1 {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, false, err
	}

	hasMore := false
	if len(logs) > maxResults {
		hasMore = true
		logs = logs[:maxResults]
	}

	if len(logs) == 0 {
		return []LogEntry{}, bytesRead, false, nil
	}

	return logs, bytesRead, hasMore, nil
}

func parseLogLine(line string) (LogEntry, bool) {
	timeMatch := logTimeRegex.FindStringSubmatch(line)
	if len(timeMatch) < 2 {
		return LogEntry{}, false
	}

	levelMatch := logLevelRegex.FindStringSubmatch(line)
	if len(levelMatch) < 2 {
		return LogEntry{}, false
	}

	var level LogLevel
	switch strings.ToLower(levelMatch[1]) {
	case "debug":
		level = LogLevelDebug
	case "warn", "warning":
		level = LogLevelWarn
	case "error":
		level = LogLevelError
	default:
		level = LogLevelInfo
	}

	msgMatch := logMsgRegex.FindStringSubmatch(line)
	if len(msgMatch) < 2 {
		return LogEntry{}, false
	}
	message := msgMatch[1]

	// keep the structured attrs after msg as part of the message
	restIndex := strings.Index(line, msgMatch[0]) + len(msgMatch[0])
	if restIndex < len(line) {
		if rest := strings.TrimSpace(line[restIndex:]); rest != "" {
			message += " " + rest
		}
	}

	return LogEntry{
		Timestamp: timeMatch[1],
		Level:     level,
		Message:   message,
	}, true
}
