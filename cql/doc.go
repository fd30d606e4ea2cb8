// Copyright 2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cql defines the semantic values of the CQL native protocol that
// the cluster client deals in: consistency levels, request variants
// (query, prepare, execute, batch) and response variants (rows, prepared,
// set-keyspace, errors). It deliberately stops above the wire: encoding
// frames to bytes and decoding bytes back is the connection layer's job.
// The cluster client only inspects and rewrites these values: patching a
// request's consistency across retries, splicing prepared ids into batch
// entries, classifying an error response by its code.
package cql
