// Copyright (c) 2022 Shanghai Xinbida Network Technology Co., Ltd. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wraft

// FSM 由上层实现的状态机，只会被apply协程顺序调用
type FSM interface {
	// Apply 应用一条已提交的日志，返回的数据会作为写入结果返回给提案者
	Apply(index uint64, data []byte) ([]byte, error)
	// Snapshot 序列化当前状态
	Snapshot() ([]byte, error)
	// Restore 用快照替换当前状态
	Restore(snapshot []byte) error
}
