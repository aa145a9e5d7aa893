package utils

import "github.com/gin-gonic/gin"

const (
	// 流结束标记帧
	EventEnd    = "end"
	SSESentinel = "[DONE]"
)

func SetSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

func SendSSEMessage(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}

// SendSSESentinel 写入结束帧，调用方据此判断流已完整结束
func SendSSESentinel(c *gin.Context) {
	SendSSEMessage(c, EventEnd, SSESentinel)
}
