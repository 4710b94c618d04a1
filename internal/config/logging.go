// Copyright 2015 Google Inc. All Rights Reserved.
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

package config

import "github.com/sirupsen/logrus"

// NewLogger builds a logrus logger whose level tracks the repeatable
// -d/--debug count the way the source's _g_debug counter gated
// increasingly chatty fprintf(stderr, ...) calls: 0 is normal operation
// (Info), 1 enables Debug messages, 2+ turns on everything logrus has.
func NewLogger(debug int) *logrus.Logger {
	log := logrus.New()

	switch {
	case debug >= 2:
		log.SetLevel(logrus.TraceLevel)
	case debug == 1:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}
