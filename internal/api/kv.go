package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/WuKongIM/wkkv/internal/coordinator"
	"github.com/WuKongIM/wkkv/internal/kvstore"
	"github.com/WuKongIM/wkkv/pkg/wkhttp"
	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/WuKongIM/wkkv/pkg/wraft/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidBody = errors.New("数据格式有误！")

type kvApi struct {
	s *Server
	wklog.Log
}

func newKVApi(s *Server) *kvApi {
	return &kvApi{
		s:   s,
		Log: wklog.NewWKLog("kvApi"),
	}
}

func (k *kvApi) route(r gin.IRoutes) {
	r.POST("/write", k.s.r.LMHttpHandler(k.write))                    // 写入
	r.POST("/read", k.s.r.LMHttpHandler(k.read))                      // 本地读，可能读到旧值
	r.POST("/consistent_read", k.s.r.LMHttpHandler(k.consistentRead)) // 线性一致读
}

type writeResp struct {
	Index uint64 `json:"index"`
	Term  uint64 `json:"term"`
	Value string `json:"value"`
}

func (k *kvApi) write(c *wkhttp.Context) {
	var req kvstore.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		k.Debug("bind write request failed", zap.Error(err))
		c.ResponseError(errInvalidBody)
		return
	}
	if req.Key == "" {
		c.ResponseError(kvstore.ErrEmptyKey)
		return
	}
	out, err := k.s.opts.KV.SubmitWrite(c.Request.Context(), req)
	if err != nil {
		k.responseWriteError(c, err)
		return
	}
	resp, err := kvstore.DecodeResponse(out.Data)
	if err != nil {
		k.Warn("decode write response failed", zap.Error(err))
	}
	c.ResponseOKWithData(writeResp{
		Index: out.Index,
		Term:  out.Term,
		Value: resp.Value,
	})
}

func (k *kvApi) responseWriteError(c *wkhttp.Context, err error) {
	if hint, ok := types.LeaderHintOf(err); ok {
		k.responseNotLeader(c, err, hint)
		return
	}
	switch {
	case errors.Is(err, types.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.ResponseErrorWithStatus(http.StatusGatewayTimeout, err)
	case errors.Is(err, types.ErrStopped), errors.Is(err, types.ErrUnavailable):
		c.ResponseErrorWithStatus(http.StatusServiceUnavailable, err)
	case errors.Is(err, kvstore.ErrEmptyKey):
		c.ResponseError(err)
	default:
		k.Error("write failed", zap.Error(err), zap.String("requestId", c.RequestID()))
		c.ResponseErrorWithStatus(http.StatusInternalServerError, err)
	}
}

func (k *kvApi) responseNotLeader(c *wkhttp.Context, err error, hint uint64) {
	data := gin.H{"leader_id": hint}
	if hint != 0 {
		data["leader_addr"] = k.s.opts.PeerAddr(hint)
	}
	c.ResponseErrorWithData(http.StatusMisdirectedRequest, err, data)
}

func (k *kvApi) read(c *wkhttp.Context) {
	var key string
	if err := c.ShouldBindJSON(&key); err != nil {
		c.ResponseError(errInvalidBody)
		return
	}
	c.ResponseOKWithData(k.s.opts.KV.LocalRead(key))
}

func (k *kvApi) consistentRead(c *wkhttp.Context) {
	var key string
	if err := c.ShouldBindJSON(&key); err != nil {
		c.ResponseError(errInvalidBody)
		return
	}
	value, err := k.s.opts.KV.LinearizableRead(c.Request.Context(), key)
	if err != nil {
		re, ok := coordinator.AsReadError(err)
		if !ok {
			k.Error("consistent read failed", zap.Error(err))
			c.ResponseErrorWithStatus(http.StatusInternalServerError, err)
			return
		}
		switch re.Kind {
		case coordinator.ReadErrNotLeader:
			k.responseNotLeader(c, err, re.LeaderHint)
		case coordinator.ReadErrTimeout:
			c.ResponseErrorWithStatus(http.StatusGatewayTimeout, err)
		default:
			c.ResponseErrorWithStatus(http.StatusServiceUnavailable, err)
		}
		return
	}
	c.ResponseOKWithData(value)
}
