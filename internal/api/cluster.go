package api

import (
	"github.com/WuKongIM/wkkv/pkg/wkhttp"
	"github.com/gin-gonic/gin"
)

type clusterApi struct {
	s *Server
}

func newClusterApi(s *Server) *clusterApi {
	return &clusterApi{
		s: s,
	}
}

func (a *clusterApi) route(r gin.IRoutes) {
	r.GET("/cluster/status", a.s.r.LMHttpHandler(a.status)) // 节点的raft状态
}

func (a *clusterApi) status(c *wkhttp.Context) {
	st := a.s.opts.Node.Status()
	data := gin.H{
		"id":          st.ID,
		"leader":      st.Leader,
		"leader_addr": a.s.opts.PeerAddr(st.Leader),
		"term":        st.Term,
		"role":        st.Role,
		"committed":   st.Committed,
		"applied":     st.Applied,
	}
	if store := a.s.opts.Store; store != nil {
		data["keys"] = store.Len()
		data["sm_applied"] = store.LastApplied()
	}
	c.ResponseOKWithData(data)
}
