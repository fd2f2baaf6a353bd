// Package api 对外暴露 MantlePilot 的 HTTP 接口。
//
// 提供同步问答、异步请求提交与查询三类端点，并附带健康检查和
// Prometheus 文本格式的指标输出。
package api
