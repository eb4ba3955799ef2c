// Copyright 2024 Celine Data Platform Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlgate

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// depthOf measures the AST's maximum walk length under node, generically,
// by walking the protobuf message tree pg_query_go's parser produces —
// rather than hand-maintaining a depth case for every node kind, which
// would silently under-count the moment a new node type is added.
func depthOf(node *pg_query.Node) int {
	if node == nil {
		return 0
	}
	return messageDepth(node)
}

func messageDepth(m proto.Message) int {
	if m == nil {
		return 0
	}
	pr := m.ProtoReflect()
	if !pr.IsValid() {
		return 0
	}
	max := 0
	pr.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if d := valueDepth(fd, v); d > max {
			max = d
		}
		return true
	})
	return 1 + max
}

func valueDepth(fd protoreflect.FieldDescriptor, v protoreflect.Value) int {
	if fd.IsList() {
		list := v.List()
		max := 0
		for i := 0; i < list.Len(); i++ {
			if d := elemDepth(fd, list.Get(i)); d > max {
				max = d
			}
		}
		return max
	}
	return elemDepth(fd, v)
}

func elemDepth(fd protoreflect.FieldDescriptor, v protoreflect.Value) int {
	if fd.Kind() != protoreflect.MessageKind && fd.Kind() != protoreflect.GroupKind {
		return 0
	}
	msg := v.Message()
	if !msg.IsValid() {
		return 0
	}
	return messageDepth(msg.Interface())
}
