package wkhttp

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

type WKHttp struct {
	r    *gin.Engine
	pool sync.Pool
}

func New() *WKHttp {
	l := &WKHttp{
		r:    gin.New(),
		pool: sync.Pool{},
	}
	l.r.Use(gin.Recovery())
	_ = l.r.SetTrustedProxies(nil)
	l.pool.New = func() interface{} {
		return allocateContext()
	}
	return l
}

// NewWithLogger 第一个中间件为日志中间件
func NewWithLogger(loggerHandler HandlerFunc) *WKHttp {
	l := &WKHttp{
		r:    gin.New(),
		pool: sync.Pool{},
	}
	l.pool.New = func() interface{} {
		return allocateContext()
	}
	l.r.Use(l.LMHttpHandler(loggerHandler))
	l.r.Use(gin.Recovery())
	_ = l.r.SetTrustedProxies(nil)
	return l
}

// GetGinRoute GetGinRoute
func (l *WKHttp) GetGinRoute() *gin.Engine {
	return l.r
}

func allocateContext() *Context {
	return &Context{Context: nil}
}

// Use Use
func (l *WKHttp) Use(handlers ...HandlerFunc) {
	l.r.Use(l.handlersToGinHandleFuncs(handlers)...)
}

type Context struct {
	*gin.Context
}

func (c *Context) reset() {
	c.Context = nil
}

// ResponseError 400
func (c *Context) ResponseError(err error) {
	c.ResponseErrorWithStatus(http.StatusBadRequest, err)
}

// ResponseErrorWithStatus 使用指定的http状态码返回错误
func (c *Context) ResponseErrorWithStatus(status int, err error) {
	c.JSON(status, gin.H{
		"msg":    err.Error(),
		"status": status,
	})
}

// ResponseErrorWithData 返回错误并携带附加字段
func (c *Context) ResponseErrorWithData(status int, err error, data gin.H) {
	body := gin.H{
		"msg":    err.Error(),
		"status": status,
	}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(status, body)
}

// ResponseOK 返回正确
func (c *Context) ResponseOK() {
	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
	})
}

// ResponseOKWithData 返回正确并携带数据
func (c *Context) ResponseOKWithData(data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   data,
	})
}

// RequestID 当前请求的id，由 RequestIDMiddleware 设置
func (c *Context) RequestID() string {
	return c.GetString(RequestIDKey)
}

// HandlerFunc HandlerFunc
type HandlerFunc func(c *Context)

// LMHttpHandler LMHttpHandler
func (l *WKHttp) LMHttpHandler(handlerFunc HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		hc := l.pool.Get().(*Context)
		hc.reset()
		hc.Context = c
		handlerFunc(hc)
		l.pool.Put(hc)
	}
}

// Run Run
func (l *WKHttp) Run(addr ...string) error {
	return l.r.Run(addr...)
}

// POST POST
func (l *WKHttp) POST(relativePath string, handlers ...HandlerFunc) {
	l.r.POST(relativePath, l.handlersToGinHandleFuncs(handlers)...)
}

// GET GET
func (l *WKHttp) GET(relativePath string, handlers ...HandlerFunc) {
	l.r.GET(relativePath, l.handlersToGinHandleFuncs(handlers)...)
}

func (l *WKHttp) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	l.r.ServeHTTP(w, req)
}

func (l *WKHttp) handlersToGinHandleFuncs(handlers []HandlerFunc) []gin.HandlerFunc {
	newHandlers := make([]gin.HandlerFunc, 0, len(handlers))
	for _, handler := range handlers {
		newHandlers = append(newHandlers, l.LMHttpHandler(handler))
	}
	return newHandlers
}
