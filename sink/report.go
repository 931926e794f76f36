// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ReportFile writes every snapshot as indented JSON to a file, replacing the previous one.
type ReportFile struct {
	fn string
}

func NewReportFile(fn string) *ReportFile {
	return &ReportFile{fn: fn}
}

func (r *ReportFile) Name() string {
	return "report:" + r.fn
}

func (r *ReportFile) OnSnapshot(_ context.Context, s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}

	// write then rename, so readers never see a partial report.
	tmp := filepath.Join(filepath.Dir(r.fn), "."+filepath.Base(r.fn)+".tmp")
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "write report %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, r.fn), "rename report to %s", r.fn)
}
