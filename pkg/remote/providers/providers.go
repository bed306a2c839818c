// Copyright 2025 walteh LLC
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

// Package providers registers every content client with the remote registry.
package providers

import (
	_ "github.com/walteh/repofetch/pkg/remote/azure"
	_ "github.com/walteh/repofetch/pkg/remote/bitbucket"
	_ "github.com/walteh/repofetch/pkg/remote/bitbucketserver"
	_ "github.com/walteh/repofetch/pkg/remote/codecommit"
	_ "github.com/walteh/repofetch/pkg/remote/github"
	_ "github.com/walteh/repofetch/pkg/remote/gitlab"
)
