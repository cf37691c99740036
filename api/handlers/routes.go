package handlers

import "net/http"

// APIPrefix 业务接口前缀
const APIPrefix = "/api/v1"

// Routes 业务路由所需的全部处理器
type Routes struct {
	Health    *HealthHandler
	Retrieval *RetrievalHandler
	Users     *UserHandler
	Sessions  *SessionHandler
}

// Register 在 mux 上注册路由（Go 1.22 方法 + 路径模式）
func (rt Routes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", rt.Health.HandleHealth)
	mux.HandleFunc("GET /ready", rt.Health.HandleReady)

	mux.HandleFunc("POST "+APIPrefix+"/evidence", rt.Retrieval.HandleEvidence)
	mux.HandleFunc("POST "+APIPrefix+"/answer", rt.Retrieval.HandleAnswer)

	mux.HandleFunc("POST "+APIPrefix+"/users/{id}/ingest", rt.Users.HandleIngest)
	mux.HandleFunc("DELETE "+APIPrefix+"/users/{id}", rt.Users.HandleDeleteUser)

	mux.HandleFunc("POST "+APIPrefix+"/sessions", rt.Sessions.HandleCreate)
	mux.HandleFunc("GET "+APIPrefix+"/users/{id}/sessions", rt.Sessions.HandleList)
	mux.HandleFunc("GET "+APIPrefix+"/sessions/{id}/messages", rt.Sessions.HandleMessages)
	mux.HandleFunc("DELETE "+APIPrefix+"/sessions/{id}", rt.Sessions.HandleDelete)
}
