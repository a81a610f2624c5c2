/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

// DialogueLine is one rendered line of a panel's dialogue.
// Speaker is empty for narration or any line that does not start with a short
// "NAME:" prefix.
type DialogueLine struct {
	Speaker string
	Text    string
}

// HasSpeaker reports whether the line is attributed to a character.
func (l DialogueLine) HasSpeaker() bool { return l.Speaker != "" }

// MaxSpeakerPrefix bounds the position of the colon that separates a speaker
// from the spoken text. A colon at rune index 0 or at index >= MaxSpeakerPrefix
// does not introduce a speaker, which keeps times and ratios inside sentences
// from being read as names.
const MaxSpeakerPrefix = 20
